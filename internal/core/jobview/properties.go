package jobview

// MaxRenderDepth bounds how many nested objects RenderableEntries expands.
// Deeper objects are shown as compact JSON.
const MaxRenderDepth = 32

// KnownKeys are rendered by dedicated fields and skipped as custom properties.
var KnownKeys = map[string]struct{}{
	KeyFitStart:             {},
	KeyFitEnd:               {},
	KeyFitRoundStart:        {},
	KeyFitRoundEnd:          {},
	KeyEvalStart:            {},
	KeyEvalEnd:              {},
	KeyEvalRoundStart:       {},
	KeyEvalRoundEnd:         {},
	KeyRounds:               {},
	KeyHostType:             {},
	KeyInitialized:          {},
	KeyShutdown:             {},
	KeyFitElapsedTime:       {},
	KeyFitRoundTimeElapsed:  {},
	KeyEvalRoundTimeElapsed: {},
}

// Entry is one rendered property. Objects carry Children instead of Value.
type Entry struct {
	Name     string  `json:"name"`
	Value    string  `json:"value,omitempty"`
	Children []Entry `json:"children,omitempty"`
}

// RenderableEntries walks o in insertion order, skipping excluded keys at
// every level. Arrays render as JSON text, objects expand into Children and
// scalars render as-is.
func RenderableEntries(o *Object, excluded map[string]struct{}) []Entry {
	return renderEntries(o, excluded, 0)
}

func renderEntries(o *Object, excluded map[string]struct{}, depth int) []Entry {
	var entries []Entry
	for _, f := range o.Fields() {
		if _, skip := excluded[f.Key]; skip {
			continue
		}
		e := Entry{Name: f.Key}
		switch {
		case f.Value.Kind == KindObject && depth+1 < MaxRenderDepth:
			e.Children = renderEntries(f.Value.Object, excluded, depth+1)
		default:
			e.Value = f.Value.String()
		}
		entries = append(entries, e)
	}
	return entries
}

// ConfigEntries renders every field of a server configuration as text.
func ConfigEntries(o *Object) []Entry {
	fields := o.Fields()
	entries := make([]Entry, 0, len(fields))
	for _, f := range fields {
		entries = append(entries, Entry{Name: f.Key, Value: f.Value.String()})
	}
	return entries
}
