// Package generate implements the Generator (spec §4.G): pure functions
// from a TypeTree to validator source, interface source, and a metadata
// record. Emission targets Go as the ecosystem: the interface source is a
// Go struct declaration, the validator source is a declarative Go map
// literal describing required/optional/redacted fields that a consumer
// can walk without re-deriving the tree.
package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"time"

	"github.com/schemaforge/schemaforge/internal/types"
	"gopkg.in/yaml.v3"
)

// Generator emits artifacts from a TypeTree. Stateless; safe for
// concurrent use.
type Generator struct{}

// New constructs a Generator.
func New() *Generator {
	return &Generator{}
}

// Artifacts bundles everything the Store persists for one kind (§4.G,
// §4.H save).
type Artifacts struct {
	ValidatorSource string
	InterfaceSource string
	Metadata        []byte
}

// Generate produces every artifact for kind from tree. Emitted strings are
// always syntactically well-formed Go; on pretty-print failure it falls
// back to a minimally-indented but still valid form, and on total
// interface-generation failure it emits a degenerate "any-shaped"
// interface so that metadata and TypeTree persistence still succeed
// (§4.G).
func (g *Generator) Generate(kind types.EventKind, record *types.SchemaRecord) Artifacts {
	typeName := TypeName(kind)
	return Artifacts{
		ValidatorSource: g.validatorSource(typeName, record.SavedTree),
		InterfaceSource: g.interfaceSource(typeName, record.SavedTree),
		Metadata:        g.Metadata(record),
	}
}

// TypeName derives a PascalCase Go identifier from an EventKind by
// splitting on '/' and non-alphanumeric runs and concatenating each
// segment's pascal-cased form (§4.G), e.g.
// "whatsapp_business_account/messages_image" -> "WhatsappBusinessAccountMessagesImage".
func TypeName(kind types.EventKind) string {
	var sb strings.Builder
	wordStart := true
	for _, r := range string(kind) {
		switch {
		case isAlnum(r):
			if wordStart {
				sb.WriteRune(toUpper(r))
				wordStart = false
			} else {
				sb.WriteRune(r)
			}
		default:
			wordStart = true
		}
	}
	name := sb.String()
	if name == "" {
		return "Unknown"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "K" + name
	}
	return name
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// interfaceSource renders a Go struct declaration for tree under typeName.
// Falls back to a minimally-indented rendering if gofmt rejects the
// generated source, and to a degenerate any-shaped interface if even
// building the field list panics.
func (g *Generator) interfaceSource(typeName string, tree *types.TypeTree) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = degenerateInterface(typeName, tree)
		}
	}()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "package schemas\n\n// %s was inferred from observed payloads; field order is not significant.\n", typeName)
	writeStruct(&buf, typeName, tree, map[string]bool{})

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return minimallyIndented(buf.String())
	}
	return string(formatted)
}

// degenerateInterface is the Generator's last resort: an open map-shaped
// Go type, with the best-effort shape it could still observe rendered as
// a YAML comment block so the artifact stays useful to an operator even
// when it could not be turned into real fields (§4.G).
func degenerateInterface(typeName string, tree *types.TypeTree) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "package schemas\n\n// %s could not be structurally derived; falls back to an open shape.\n", typeName)
	if shape := yamlShape(tree); shape != "" {
		buf.WriteString("//\n// Best-effort observed shape:\n")
		for _, line := range strings.Split(strings.TrimRight(shape, "\n"), "\n") {
			buf.WriteString("// " + line + "\n")
		}
	}
	fmt.Fprintf(&buf, "type %s map[string]interface{}\n", typeName)
	return buf.String()
}

// yamlShape renders a simplified, panic-safe view of tree as YAML. Any
// failure (including the same condition that made the struct generation
// above panic) yields an empty string rather than propagating.
func yamlShape(tree *types.TypeTree) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	if tree == nil {
		return ""
	}
	b, err := yaml.Marshal(simplify(tree))
	if err != nil {
		return ""
	}
	return string(b)
}

// simplify converts a TypeTree into plain maps/slices so yaml.Marshal
// never has to reason about the TypeTree's own field tags.
func simplify(t *types.TypeTree) any {
	if t == nil {
		return nil
	}
	node := map[string]any{"kind": string(t.Kind)}
	if t.Optional {
		node["optional"] = true
	}
	if t.Redacted {
		node["redacted"] = string(t.RedactedOriginalKind)
	}
	if len(t.Children) > 0 {
		children := make(map[string]any, len(t.Children))
		for k, v := range t.Children {
			children[k] = simplify(v)
		}
		node["children"] = children
	}
	if t.ItemType != nil {
		node["itemType"] = simplify(t.ItemType)
	}
	return node
}

// writeStruct writes typeName's struct declaration and recurses into
// nested object children, naming anonymous nested types
// "<typeName><FieldName>". seen guards against pathological cyclic
// generation requests (TypeTree itself is acyclic, but defensive all the
// same since this walks attacker-shaped data).
func writeStruct(buf *bytes.Buffer, typeName string, tree *types.TypeTree, seen map[string]bool) {
	if seen[typeName] {
		return
	}
	seen[typeName] = true

	var nested bytes.Buffer
	fmt.Fprintf(buf, "type %s struct {\n", typeName)
	if tree != nil && tree.Kind == types.KindObject {
		keys := sortedKeys(tree.Children)
		for _, key := range keys {
			child := tree.Children[key]
			fieldName := exportedFieldName(key)
			goType := goTypeOf(typeName, fieldName, child, &nested, seen)
			tag := jsonTag(key, child.Optional)
			comment := fieldComment(child)
			fmt.Fprintf(buf, "\t%s %s `json:\"%s\"`%s\n", fieldName, goType, tag, comment)
		}
	}
	fmt.Fprintf(buf, "}\n\n")
	buf.Write(nested.Bytes())
}

func goTypeOf(parentType, fieldName string, t *types.TypeTree, buf *bytes.Buffer, seen map[string]bool) string {
	if t == nil {
		return "interface{}"
	}
	switch t.Kind {
	case types.KindString:
		return "string"
	case types.KindNumber:
		return "float64"
	case types.KindBoolean:
		return "bool"
	case types.KindNull:
		return "interface{}"
	case types.KindUnion:
		return "interface{}"
	case types.KindArray:
		if t.ItemType == nil {
			return "[]interface{}"
		}
		return "[]" + goTypeOf(parentType, fieldName, t.ItemType, buf, seen)
	case types.KindObject:
		nestedType := parentType + fieldName
		writeStruct(buf, nestedType, t, seen)
		return nestedType
	default:
		return "interface{}"
	}
}

func jsonTag(key string, optional bool) string {
	if optional {
		return key + ",omitempty"
	}
	return key
}

func fieldComment(t *types.TypeTree) string {
	if t == nil || !t.Redacted {
		return ""
	}
	return fmt.Sprintf(" // redacted (%s)", t.RedactedOriginalKind)
}

// exportedFieldName derives an exported Go field name from a dotted-path
// segment, splitting on non-alphanumeric runs like TypeName.
func exportedFieldName(key string) string {
	name := TypeName(types.EventKind(key))
	if name == "" || name == "Unknown" {
		return "Field"
	}
	return name
}

func sortedKeys(m map[string]*types.TypeTree) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// minimallyIndented is the fallback rendering used when gofmt rejects the
// generated source: tab-width normalization only, no AST-aware alignment.
func minimallyIndented(src string) string {
	lines := strings.Split(src, "\n")
	var sb strings.Builder
	depth := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "}") {
			depth--
			if depth < 0 {
				depth = 0
			}
		}
		sb.WriteString(strings.Repeat("\t", depth))
		sb.WriteString(trimmed)
		sb.WriteString("\n")
		if strings.HasSuffix(trimmed, "{") {
			depth++
		}
	}
	return sb.String()
}

// validatorSource renders a declarative Go map literal describing
// required/optional/redacted fields at every path, keyed by dotted path,
// so a consumer can walk it without re-deriving the TypeTree.
func (g *Generator) validatorSource(typeName string, tree *types.TypeTree) string {
	var rules []string
	walkValidatorRules(tree, "", &rules)
	sort.Strings(rules)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "package schemas\n\n// %sValidator declaratively describes %s's inferred shape.\n", typeName, typeName)
	fmt.Fprintf(&buf, "var %sValidator = map[string]string{\n", typeName)
	for _, rule := range rules {
		fmt.Fprintf(&buf, "\t%s\n", rule)
	}
	fmt.Fprintf(&buf, "}\n")

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return minimallyIndented(buf.String())
	}
	return string(formatted)
}

func walkValidatorRules(t *types.TypeTree, path string, out *[]string) {
	if t == nil {
		return
	}
	if path != "" {
		descriptor := string(t.Kind)
		if t.Optional {
			descriptor += ",optional"
		}
		if t.Redacted {
			descriptor += fmt.Sprintf(",redacted=%s", t.RedactedOriginalKind)
		}
		*out = append(*out, fmt.Sprintf("%q: %q,", path, descriptor))
	}
	for key, child := range t.Children {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		walkValidatorRules(child, childPath, out)
	}
	if t.Kind == types.KindArray && t.ItemType != nil {
		walkValidatorRules(t.ItemType, path+"[*]", out)
	}
}

// metadataView is the JSON shape persisted to metadata.json (§4.H, §6):
// "the SchemaRecord minus binary artifacts (includes savedTree)" — every
// SchemaRecord field named in §3, with SavedTree included so the tree can
// be reconstructed from this single file rather than a separate artifact.
type metadataView struct {
	Kind                 types.EventKind   `json:"kind"`
	Version              int64             `json:"version"`
	StructureFingerprint string            `json:"structureFingerprint"`
	FirstSeen            string            `json:"firstSeen"`
	LastSeen             string            `json:"lastSeen"`
	LastModified         string            `json:"lastModified"`
	TotalReceived        int64             `json:"totalReceived"`
	Fields               types.FieldSets   `json:"fields"`
	Variations           []types.Variation `json:"variations"`
	SavedTree            *types.TypeTree   `json:"savedTree"`
}

// Metadata serializes record to the pretty-printed JSON persisted as
// metadata.json (§4.H, §6), including SavedTree. Exported so both Save
// (a freshly generated record) and Touch (a structurally-unchanged
// update, which never calls Generate's other artifacts) can produce the
// same shape.
func (g *Generator) Metadata(record *types.SchemaRecord) []byte {
	view := metadataView{
		Kind:                 record.Kind,
		Version:              record.Version,
		StructureFingerprint: record.StructureFingerprint,
		FirstSeen:            record.FirstSeen.Format(time.RFC3339),
		LastSeen:             record.LastSeen.Format(time.RFC3339),
		LastModified:         record.LastModified.Format(time.RFC3339),
		TotalReceived:        record.TotalReceived,
		Fields:               record.Fields,
		Variations:           record.Variations,
		SavedTree:            record.SavedTree,
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		b, _ = json.Marshal(struct {
			Kind  types.EventKind `json:"kind"`
			Error string          `json:"error"`
		}{Kind: record.Kind, Error: err.Error()})
	}
	return b
}
