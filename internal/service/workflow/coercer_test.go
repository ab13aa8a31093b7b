package workflow

import (
	"testing"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/testutil"
)

func TestCoerceResponse_Chain(t *testing.T) {
	tests := []struct {
		name string
		text string
		path CoercionPath
		want any
	}{
		{"plain json", `{"concept": "sunrise picnic"}`, PathJSON, "sunrise picnic"},
		{"padded json", "\n  {\"concept\": \"sunrise picnic\"}  \n", PathJSON, "sunrise picnic"},
		{"fenced", "```json\n{\"concept\": \"sunrise picnic\"}\n```", PathFenced, "sunrise picnic"},
		{"bare fence", "```\n{\"concept\": \"sunrise picnic\"}\n```", PathFenced, "sunrise picnic"},
		{"prose around object", "Sure! Here it is:\n{\"concept\": \"sunrise {picnic}\"}\nHope it helps.", PathExtracted, "sunrise {picnic}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CoerceResponse(tt.text, []string{"concept"})
			testutil.AssertEqual(t, c.Path, tt.path)
			testutil.AssertFalse(t, c.Degraded(), "coercion should not degrade")
			p := c.Payloads["concept"]
			testutil.AssertFalse(t, p.IsUnstructured(), "payload should be structured")
			if p.Value != tt.want {
				t.Errorf("concept = %v, want %v", p.Value, tt.want)
			}
		})
	}
}

func TestCoerceResponse_UnstructuredFallback(t *testing.T) {
	c := CoerceResponse("  A warm kitchen at dawn, steam rising.  ", []string{"concept", "mood"})

	testutil.AssertEqual(t, c.Path, PathUnstructured)
	testutil.AssertTrue(t, c.Degraded(), "prose should degrade")
	if c.Object != nil {
		t.Errorf("Object = %v, want nil", c.Object)
	}
	for _, key := range []string{"concept", "mood"} {
		p := c.Payloads[key]
		testutil.AssertTrue(t, p.IsUnstructured(), key+" should be unstructured")
		testutil.AssertEqual(t, p.Text, "A warm kitchen at dawn, steam rising.")
	}
}

func TestCoerceResponse_Distribution(t *testing.T) {
	t.Run("declared keys take own values", func(t *testing.T) {
		c := CoerceResponse(`{"headline": "Fresh", "mood": "calm", "extra": 1}`, []string{"headline", "mood"})
		testutil.AssertEqual(t, c.Payloads["headline"].Any(), any("Fresh"))
		testutil.AssertEqual(t, c.Payloads["mood"].Any(), any("calm"))
		testutil.AssertLen(t, mapKeys(c.Payloads), 2)
	})

	t.Run("object without declared keys goes under every key", func(t *testing.T) {
		c := CoerceResponse(`{"idea": "picnic"}`, []string{"copywriter"})
		obj, ok := c.Payloads["copywriter"].Value.(map[string]any)
		testutil.AssertTrue(t, ok, "payload should hold the whole object")
		testutil.AssertEqual(t, obj["idea"], any("picnic"))
	})

	t.Run("array goes under every key", func(t *testing.T) {
		c := CoerceResponse(`["a", "b"]`, []string{"ideas"})
		items, ok := c.Payloads["ideas"].Value.([]any)
		testutil.AssertTrue(t, ok, "payload should hold the array")
		testutil.AssertLen(t, items, 2)
	})
}

func TestCoerceFinal(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		ok     bool
		prompt string
	}{
		{"flat object", `{"imagePrompt": "A jar of honey on oak.", "camera": "eye level"}`, true, "A jar of honey on oak."},
		{"snake case", `{"image_prompt": "A jar of honey."}`, true, "A jar of honey."},
		{"nested scene", `{"scene": {"imagePrompt": "A jar of honey."}}`, true, "A jar of honey."},
		{"array", "```json\n[{\"imagePrompt\": \"A jar of honey.\"}]\n```", true, "A jar of honey."},
		{"empty prompt", `{"imagePrompt": "   "}`, false, ""},
		{"no prompt", `{"camera": "eye level"}`, false, ""},
		{"prose", "I would show a jar of honey.", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, _, ok := CoerceFinal(tt.text)
			testutil.AssertEqual(t, ok, tt.ok)
			if ok {
				testutil.AssertEqual(t, stringField(obj, imagePromptKeys...), tt.prompt)
			}
		})
	}
}

func TestFirstObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`x {"a": 1} y {"b": 2}`, `{"a": 1}`},
		{`{"a": "}"}`, `{"a": "}"}`},
		{`{"a": "\"}"}`, `{"a": "\"}"}`},
		{`{"a": {"b": 1}}`, `{"a": {"b": 1}}`},
		{`no braces`, ``},
		{`{"open": 1`, ``},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, firstObject(tt.in), tt.want)
	}
}

func mapKeys(m map[string]core.Payload) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
