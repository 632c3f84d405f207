package codes

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadOverrides reads extra or replacement codes from a yaml, toml or json
// file with two maps:
//
//	ten_codes:   { "10-99": "Officer needs help" }
//	penal_codes: { "647(f)": "Drunk in public (MISDEMEANOR)" }
//
// Keys are matched case-insensitively on load, which is how ten/eleven
// codes are normalized anyway. Penal keys come back lower-cased and are
// found through the lower-case fallback of PenalMeaning.
func LoadOverrides(path string) (tenEleven, penal map[string]string, err error) {
	// Penal sections contain dots ("647.6"), so the nested key delimiter
	// must be something that never appears in a code.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read code overrides %s: %w", path, err)
	}

	tenEleven = cleanMap(v.GetStringMapString("ten_codes"))
	penal = cleanMap(v.GetStringMapString("penal_codes"))
	return tenEleven, penal, nil
}

// LoadTable returns the default table, overlaid with the overrides file when
// path is non-empty.
func LoadTable(path string) (*Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	ten, pc, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return t.Merge(ten, pc), nil
}

func cleanMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
