package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixupURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		raw      string
		entityID string
		want     string
	}{
		{
			name:     "missing param gets injected",
			raw:      "https://example.org/detail?view=full",
			entityID: "71-43-2",
			want:     "https://example.org/detail?ch=71-43-2&view=full",
		},
		{
			name:     "existing param untouched",
			raw:      "https://example.org/detail?ch=50-00-0",
			entityID: "71-43-2",
			want:     "https://example.org/detail?ch=50-00-0",
		},
		{
			name:     "empty param value filled",
			raw:      "https://example.org/detail?ch=",
			entityID: "71-43-2",
			want:     "https://example.org/detail?ch=71-43-2",
		},
		{
			name:     "empty url passes through",
			raw:      "",
			entityID: "71-43-2",
			want:     "",
		},
		{
			name:     "empty entity passes through",
			raw:      "https://example.org/detail",
			entityID: "",
			want:     "https://example.org/detail",
		},
		{
			name:     "unparseable url passes through",
			raw:      "https://example.org/%zz",
			entityID: "71-43-2",
			want:     "https://example.org/%zz",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, FixupURL(tc.raw, tc.entityID, "ch"))
		})
	}
}

func TestPolicyFor(t *testing.T) {
	t.Parallel()

	p, err := PolicyFor("section5")
	assert.NoError(t, err)
	assert.Equal(t, []string{TypeSection5HTML, TypeSection5PDF}, p.Types())

	p, err = PolicyFor("snur")
	assert.NoError(t, err)
	assert.Equal(t, []string{TypeSNURHTML}, p.Types(), "SNUR tracks the page capture only")

	_, err = PolicyFor("made_up")
	assert.Error(t, err)
}
