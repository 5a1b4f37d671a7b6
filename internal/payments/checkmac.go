package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// CheckMacValue signs a card form: keys sorted case-insensitively, wrapped
// in the HashKey/HashIV pair, URL-encoded, lower-cased, SHA-256, upper hex.
// A CheckMacValue entry in params is ignored.
func CheckMacValue(params map[string]string, hashKey, hashIV string) string {
	sum := sha256.Sum256([]byte(canonicalMacInput(params, hashKey, hashIV)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func canonicalMacInput(params map[string]string, hashKey, hashIV string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "CheckMacValue" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var b strings.Builder
	b.WriteString("HashKey=" + hashKey)
	for _, k := range keys {
		b.WriteString("&" + k + "=" + params[k])
	}
	b.WriteString("&HashIV=" + hashIV)

	return macEscaper.Replace(strings.ToLower(url.QueryEscape(b.String())))
}

// Providers encode with the .NET rules, which leave these characters bare.
var macEscaper = strings.NewReplacer(
	"%21", "!",
	"%2a", "*",
	"%28", "(",
	"%29", ")",
	"~", "%7e",
)
