package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply string
	err   error
	got   Request
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-1" }

func (f *fakeProvider) Chat(_ context.Context, req Request) (Response, error) {
	f.got = req
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Content: f.reply}, nil
}

type verdict struct {
	Answer string `json:"answer" jsonschema:"enum=yes,enum=no"`
	Reason string `json:"reason,omitempty"`
}

func verdictSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := SchemaFor[verdict]("verdict", "A yes/no answer")
	require.NoError(t, err)
	return s
}

func TestComplete_PassesOptions(t *testing.T) {
	p := &fakeProvider{reply: "bonjour"}
	c := NewClient(p, nil)

	got, err := c.Complete(context.Background(), "translate", WithModel("m2"), WithSystemPrompt("be terse"))
	require.NoError(t, err)
	assert.Equal(t, "bonjour", got)
	assert.Equal(t, "m2", p.got.Model)
	require.Len(t, p.got.Messages, 2)
	assert.Equal(t, SystemMessage("be terse"), p.got.Messages[0])
	assert.Equal(t, UserMessage("translate"), p.got.Messages[1])
	assert.Nil(t, p.got.Format)
}

func TestComplete_EmptyReply(t *testing.T) {
	c := NewClient(&fakeProvider{reply: "  "}, nil)
	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestComplete_TransportErrorIsNotStructural(t *testing.T) {
	boom := errors.New("connection reset")
	c := NewClient(&fakeProvider{err: boom}, nil)
	_, err := c.CompleteStructured(context.Background(), "x", verdictSchema(t))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrStructuredOutput)
}

func TestCompleteStructured(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		want       string
		structural bool
	}{
		{name: "plain", reply: `{"answer":"yes"}`, want: `{"answer":"yes"}`},
		{name: "fenced", reply: "```json\n{\"answer\":\"no\",\"reason\":\"r\"}\n```", want: `{"answer":"no","reason":"r"}`},
		{name: "null optional dropped", reply: `{"answer":"yes","reason":null}`, want: `{"answer":"yes"}`},
		{name: "enum violated", reply: `{"answer":"maybe"}`, structural: true},
		{name: "missing required", reply: `{"reason":"r"}`, structural: true},
		{name: "unknown property", reply: `{"answer":"yes","extra":1}`, structural: true},
		{name: "not json", reply: `I think yes`, structural: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{reply: tt.reply}
			c := NewClient(p, nil)

			got, err := c.CompleteStructured(context.Background(), "q", verdictSchema(t))
			require.NotNil(t, p.got.Format)
			assert.Equal(t, ResponseFormatJSONSchema, p.got.Format.Type)

			if tt.structural {
				assert.ErrorIs(t, err, ErrStructuredOutput)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestSchemaFor_Shape(t *testing.T) {
	s := verdictSchema(t)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(s.JSON(), &doc))

	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, "A yes/no answer", doc["description"])
	assert.NotContains(t, doc, "$schema")
	assert.NotContains(t, doc, "$ref")
	assert.ElementsMatch(t, []any{"answer"}, doc["required"])
	assert.Contains(t, s.Indented(), "\n")
}

func TestWithSchemaInstruction(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)

	got := withSchemaInstruction([]ChatMessage{UserMessage("q")}, schema)
	require.Len(t, got, 2)
	assert.Equal(t, "system", got[0].Role)
	assert.Contains(t, got[0].Content, `{"type":"object"}`)

	got = withSchemaInstruction([]ChatMessage{SystemMessage("base"), UserMessage("q")}, nil)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Content, "base")
	assert.Contains(t, got[0].Content, "single JSON object")
}
