package android

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shogo82148/androidbinary/apk"

	"github.com/spance/a11ycheck/checker/definitions"
)

// ReadManifest decodes the binary AndroidManifest.xml of the APK at path.
func ReadManifest(path string) (*definitions.ApkManifest, error) {
	pkg, err := apk.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open apk %s: %w", path, err)
	}
	defer pkg.Close()

	m := pkg.Manifest()
	name, err := m.Package.String()
	if err != nil {
		return nil, fmt.Errorf("apk %s package name: %w", path, err)
	}

	manifest := &definitions.ApkManifest{Package: name}
	// the remaining attributes are informational; unresolved ones stay empty
	if v, err := m.VersionName.String(); err == nil {
		manifest.VersionName = v
	}
	if v, err := m.VersionCode.Int32(); err == nil {
		manifest.VersionCode = v
	}
	if v, err := m.SDK.Min.Int32(); err == nil {
		manifest.MinSDK = v
	}
	if v, err := m.SDK.Target.Int32(); err == nil {
		manifest.TargetSDK = v
	}
	for _, p := range m.UsesPermissions {
		if perm, err := p.Name.String(); err == nil && perm != "" {
			manifest.Permissions = append(manifest.Permissions, perm)
		}
	}

	log.Debug().Str("package", manifest.Package).Str("version", manifest.VersionName).
		Int("permissions", len(manifest.Permissions)).Msg("[ReadManifest] decoded")
	return manifest, nil
}
