// Package dialog accepts the screen-capture permission dialog without a human.
package dialog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spance/a11ycheck/checker/helper"
	"github.com/spance/a11ycheck/constants"
)

// Acceptor accepts a modal permission dialog.
type Acceptor interface {
	Accept(ctx context.Context) error
}

// Device is the slice of the device session key scripting needs.
type Device interface {
	WaitForActivity(ctx context.Context, component string, timeout time.Duration) error
	KeyEvent(ctx context.Context, keycode int) error
}

// KeyScriptAcceptor relies on the dialog's default focus order: two focus moves land on the
// accept button, then it is activated. A changed dialog layout breaks this silently.
type KeyScriptAcceptor struct {
	device   Device
	activity string
	timeout  time.Duration
	script   []int
	pause    time.Duration
}

func NewKeyScriptAcceptor(device Device, timeout time.Duration) *KeyScriptAcceptor {
	return &KeyScriptAcceptor{
		device:   device,
		activity: constants.MediaProjectionActivity,
		timeout:  timeout,
		script:   []int{constants.KeycodeTab, constants.KeycodeTab, constants.KeycodeEnter},
		pause:    time.Second,
	}
}

// WaitForDialog blocks until the dialog activity is in the foreground.
func (a *KeyScriptAcceptor) WaitForDialog(ctx context.Context) error {
	log.Info().Str("activity", a.activity).Dur("timeout", a.timeout).Msg("[WaitForDialog] waiting")
	if err := a.device.WaitForActivity(ctx, a.activity, a.timeout); err != nil {
		return fmt.Errorf("permission dialog %s: %w", a.activity, err)
	}
	return nil
}

// Accept waits for the dialog and only then injects the key script.
func (a *KeyScriptAcceptor) Accept(ctx context.Context) error {
	if err := a.WaitForDialog(ctx); err != nil {
		return err
	}
	for i, code := range a.script {
		if err := helper.Sleep(ctx, a.pause); err != nil {
			return err
		}
		log.Debug().Int("keycode", code).Int("index", i).Msg("[Accept] key event")
		if err := a.device.KeyEvent(ctx, code); err != nil {
			return fmt.Errorf("key event %d (%d of %d): %w", code, i+1, len(a.script), err)
		}
	}
	log.Info().Msg("[Accept] permission dialog accepted")
	return nil
}

// AcceptorFunc adapts a function to Acceptor.
type AcceptorFunc func(ctx context.Context) error

func (f AcceptorFunc) Accept(ctx context.Context) error {
	return f(ctx)
}
