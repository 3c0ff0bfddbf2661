// Package snapshot compares live service responses with stored reference snapshots.
package snapshot

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/samber/lo"

	"github.com/spance/a11ycheck/constants"
)

type Kind string

const (
	Added   Kind = "added"
	Removed Kind = "removed"
	Changed Kind = "changed"
	Moved   Kind = "moved"
)

// Change is one node of the delta. Path uses dots for object keys and [i] for array indexes;
// keys holding '.', '[', ']' or '"' are written as ["key"]. Indexes refer to the live document
// except for removals, which use the reference index.
type Change struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// Delta is empty when the documents match outside the volatile fields.
type Delta struct {
	Changes []Change `json:"changes"`
}

func (d *Delta) Empty() bool {
	return d == nil || len(d.Changes) == 0
}

func (d *Delta) add(c Change) {
	d.Changes = append(d.Changes, c)
}

// decoder keeps numbers as json.Number so integers beyond float64 precision still compare.
var decoder = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

// Differ computes structural deltas, ignoring a set of volatile property names at every depth.
type Differ struct {
	ignore map[string]bool
}

func NewDiffer(volatile []string) *Differ {
	return &Differ{ignore: lo.SliceToMap(volatile, func(f string) (string, bool) {
		return f, true
	})}
}

// Diff compares with the default volatile field set.
func Diff(reference, live any) *Delta {
	return NewDiffer(constants.VolatileFields).Diff(reference, live)
}

func (d *Differ) Diff(reference, live any) *Delta {
	delta := &Delta{}
	d.diff(delta, "", reference, live)
	return delta
}

// DiffJSON decodes both documents and diffs them.
func (d *Differ) DiffJSON(reference, live []byte) (*Delta, error) {
	var ref, cur any
	if err := decoder.Unmarshal(reference, &ref); err != nil {
		return nil, fmt.Errorf("decode reference: %w", err)
	}
	if err := decoder.Unmarshal(live, &cur); err != nil {
		return nil, fmt.Errorf("decode live response: %w", err)
	}
	return d.Diff(ref, cur), nil
}

func (d *Differ) diff(delta *Delta, path string, a, b any) {
	am, aIsObj := a.(map[string]any)
	bm, bIsObj := b.(map[string]any)
	if aIsObj && bIsObj {
		d.diffObject(delta, path, am, bm)
		return
	}

	as, aIsArr := a.([]any)
	bs, bIsArr := b.([]any)
	if aIsArr && bIsArr {
		d.diffArray(delta, path, as, bs)
		return
	}

	a, b = d.Strip(a), d.Strip(b)
	if !equalValue(a, b) {
		delta.add(Change{Path: path, Kind: Changed, Old: a, New: b})
	}
}

func (d *Differ) diffObject(delta *Delta, path string, a, b map[string]any) {
	keys := lo.Union(lo.Keys(a), lo.Keys(b))
	sort.Strings(keys)

	for _, k := range keys {
		if d.ignore[k] {
			continue
		}
		av, inA := a[k]
		bv, inB := b[k]
		child := joinKey(path, k)
		switch {
		case inA && !inB:
			delta.add(Change{Path: child, Kind: Removed, Old: d.Strip(av)})
		case !inA && inB:
			delta.add(Change{Path: child, Kind: Added, New: d.Strip(bv)})
		default:
			d.diff(delta, child, av, bv)
		}
	}
}

// diffArray matches elements by ObjectHash using an LCS over the identity tokens. Unmatched
// elements sharing a token are reported as moves; the rest are additions and removals.
func (d *Differ) diffArray(delta *Delta, path string, a, b []any) {
	ta := make([]string, len(a))
	for i, v := range a {
		ta[i] = d.ObjectHash(v, i)
	}
	tb := make([]string, len(b))
	for j, v := range b {
		tb[j] = d.ObjectHash(v, j)
	}

	pairs := lcs(ta, tb)
	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))
	for _, p := range pairs {
		matchedA[p[0]], matchedB[p[1]] = true, true
		d.diff(delta, joinIndex(path, p[1]), a[p[0]], b[p[1]])
	}

	for i := range a {
		if matchedA[i] {
			continue
		}
		j, ok := lo.Find(lo.Range(len(b)), func(j int) bool {
			return !matchedB[j] && tb[j] == ta[i]
		})
		if !ok {
			continue
		}
		matchedA[i], matchedB[j] = true, true
		delta.add(Change{Path: joinIndex(path, j), Kind: Moved, From: i, To: j})
		d.diff(delta, joinIndex(path, j), a[i], b[j])
	}

	for i := range a {
		if !matchedA[i] {
			delta.add(Change{Path: joinIndex(path, i), Kind: Removed, Old: d.Strip(a[i])})
		}
	}
	for j := range b {
		if !matchedB[j] {
			delta.add(Change{Path: joinIndex(path, j), Kind: Added, New: d.Strip(b[j])})
		}
	}
}

// ObjectHash is the identity of an array element: its canonical JSON with volatile fields
// stripped. Elements that are empty once stripped get a positional token instead.
func (d *Differ) ObjectHash(v any, index int) string {
	hashed, err := sonic.ConfigStd.Marshal(d.Strip(v))
	s := string(hashed)
	if err != nil || s == "" || s == "{}" {
		return "$$index" + strconv.Itoa(index)
	}
	return s
}

// Strip returns a copy of v without volatile properties at any depth.
func (d *Differ) Strip(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if d.ignore[k] {
				continue
			}
			out[k] = d.Strip(child)
		}
		return out
	case []any:
		return lo.Map(t, func(child any, _ int) any {
			return d.Strip(child)
		})
	default:
		return v
	}
}

// lcs returns index pairs of a longest common subsequence of a and b.
func lcs(a, b []string) [][2]int {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	var pairs [][2]int
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case a[i] == b[j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

// equalValue compares leaves; numbers are equal when their decimal values are, so 1 and 1.0 match.
func equalValue(a, b any) bool {
	an, aIsNum := a.(json.Number)
	bn, bIsNum := b.(json.Number)
	if aIsNum && bIsNum {
		if an == bn {
			return true
		}
		af, _, errA := big.ParseFloat(string(an), 10, 256, big.ToNearestEven)
		bf, _, errB := big.ParseFloat(string(bn), 10, 256, big.ToNearestEven)
		return errA == nil && errB == nil && af.Cmp(bf) == 0
	}
	return reflect.DeepEqual(a, b)
}

func joinKey(path, key string) string {
	if key == "" || strings.ContainsAny(key, `.[]"`) {
		return path + "[" + strconv.Quote(key) + "]"
	}
	if path == "" {
		return key
	}
	return path + "." + key
}

func joinIndex(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
