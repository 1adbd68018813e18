package darkweb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
)

const sampleRules = `
// categorization rules
rule ransomware_site
{
    meta:
        score = 90
        author = "intel"
    strings:
        $a = "your files have been encrypted" nocase
        $b = "payment deadline"
    condition:
        any of them
}

rule carding_shop
{
    meta:
        score = 80
    strings:
        $a = "fullz" nocase
        $b = "CVV"
    condition:
        all of them
}
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules(strings.NewReader(sampleRules))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	ransomware := rules[0]
	assert.Equal(t, "ransomware_site", ransomware.Name)
	assert.Equal(t, 90, ransomware.Score)
	require.Len(t, ransomware.Strings, 2)
	assert.True(t, ransomware.Strings[0].NoCase)
	assert.False(t, ransomware.Strings[1].NoCase)
	assert.False(t, ransomware.RequireAll)

	carding := rules[1]
	assert.Equal(t, 80, carding.Score)
	assert.True(t, carding.RequireAll)
}

func TestRuleEvaluate(t *testing.T) {
	rules, err := ParseRules(strings.NewReader(sampleRules))
	require.NoError(t, err)
	ransomware, carding := rules[0], rules[1]

	// nocase string matches regardless of case
	match := ransomware.Evaluate("ALL YOUR FILES HAVE BEEN ENCRYPTED. Pay now.")
	require.NotNil(t, match)
	assert.False(t, match.FullMatch)

	// "any of them" with both strings is a full match
	match = ransomware.Evaluate("your files have been encrypted; payment deadline is tomorrow")
	require.NotNil(t, match)
	assert.True(t, match.FullMatch)

	// "all of them" fails with only one string present
	assert.Nil(t, carding.Evaluate("selling fullz cheap"))
	require.NotNil(t, carding.Evaluate("fresh fullz with CVV included"))

	// case-sensitive string must match exactly
	assert.Nil(t, carding.Evaluate("fullz with cvv included"))
}

func TestBestMatch_PrefersHigherScore(t *testing.T) {
	rules, err := ParseRules(strings.NewReader(sampleRules))
	require.NoError(t, err)

	best := BestMatch(rules, "your files have been encrypted and we have fullz with CVV")
	require.NotNil(t, best)
	assert.Equal(t, "ransomware_site", best.Rule.Name)
}

func TestLoadRules_MissingFilesDegrade(t *testing.T) {
	rs := LoadRules(t.TempDir(), common.GetLogger())
	assert.True(t, rs.Empty())
}
