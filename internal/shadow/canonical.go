package shadow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/soldalen/heatpumpctl/internal/errors"
)

// floatPrecision is the rounding applied to every numeric leaf before
// hashing. Sensor-reported setpoints jitter below 0.1 between fetches; a
// change smaller than that is noise, not a change.
const floatPrecision = 10 // one decimal

// identityKeys are tried in order to find a stable identity for records
// inside a list, so vendor-side reordering does not read as a change.
var identityKeys = []string{"circuit_id", "position", "id"}

// Canonicalize renders v as deterministic JSON: object keys sorted, floats
// rounded to one decimal, lists of keyed records ordered by their identity
// key. Two values that differ only in formatting noise canonicalize to the
// same string.
func Canonicalize(v any) (string, error) {
	errFactory := errors.New()

	raw, err := json.Marshal(v)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return "", errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	out, err := json.Marshal(normalize(tree))
	if err != nil {
		return "", errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	return string(out), nil
}

// Hash returns the hex SHA-256 digest of the canonical form.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func normalize(v any) any {
	switch t := v.(type) {
	case float64:
		return math.Round(t*floatPrecision) / floatPrecision
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		sortByIdentity(t)
		return t
	default:
		return v
	}
}

// sortByIdentity orders a list of records by the first identity key every
// element carries. Lists without a shared identity key keep their order,
// since position may be meaningful there.
func sortByIdentity(list []any) {
	if len(list) < 2 {
		return
	}

	for _, key := range identityKeys {
		if !allHaveKey(list, key) {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool {
			a := list[i].(map[string]any)[key]
			b := list[j].(map[string]any)[key]
			return identityLess(a, b)
		})
		return
	}
}

func allHaveKey(list []any, key string) bool {
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := m[key]; !ok {
			return false
		}
	}
	return true
}

func identityLess(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
