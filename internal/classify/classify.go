// Package classify implements the Classifier (spec §4.D): the most
// delicate pipeline stage, assigning every payload a stable EventKind by
// applying the first matching rule from an ordered cascade. It must
// operate on the pre-redaction payload so headers and small
// distinguishing fields are never mutated before inspection.
package classify

import (
	"regexp"
	"strings"
)

// Classifier assigns an EventKind to a decoded payload plus request
// headers. The cascade (§4.D) is fixed and documented; reordering rules
// is a breaking change per spec §9.
type Classifier struct {
	cfg Config
}

// Config holds the vendor/provider tables the cascade consults. A default
// table is shipped via DefaultConfig; operators may extend it without
// reordering the cascade itself.
type Config struct {
	// ZAPIServerHeader is the Server header value identifying a Z-API-like
	// provider (case-insensitive exact match).
	ZAPIServerHeader string
	// ZAPIOriginHosts are substrings of the Origin header identifying a
	// Z-API-like provider.
	ZAPIOriginHosts []string
	// ZAPITypes is the known vendor set for the payload-shape fallback of
	// rule 1 (case-insensitive).
	ZAPITypes map[string]bool

	// StructuralCatalog is the precedence-ordered ruleset for rule 4.
	StructuralCatalog []StructuralRule

	// Keywords is the small lookup table for rule 5.
	Keywords []KeywordRule

	// ProviderUserAgents maps a regexp (matched against the User-Agent
	// header) to a provider name, for rule 6.
	ProviderUserAgents []UserAgentRule
}

// StructuralRule is one entry of the closed, ordered catalog consulted by
// cascade step 4. A payload matches when every key in RequireKeys is a
// top-level field AND (if BodyContains is non-empty) the lowered string
// form of the payload body contains every token in BodyContains.
type StructuralRule struct {
	Kind         string
	RequireKeys  []string
	BodyContains []string
}

// KeywordRule is one entry of the small keyword-scan table consulted by
// cascade step 5.
type KeywordRule struct {
	Kind     string
	Keywords []string
}

// UserAgentRule maps a compiled pattern to a provider name for the
// generic-fallback cascade step 6.
type UserAgentRule struct {
	Pattern  *regexp.Regexp
	Provider string
}

// zAPISubTypeFields lists, in priority order, the payload fields whose
// presence determines a Z-API message sub-type (§4.D rule 1).
var zAPISubTypeFields = []string{
	"text", "image", "sticker", "audio", "video", "document",
	"location", "contact", "poll", "reaction", "order", "payment",
	"buttons", "list",
}

// DefaultConfig returns the shipped classification tables.
func DefaultConfig() Config {
	return Config{
		ZAPIServerHeader: "z-api",
		ZAPIOriginHosts:  []string{"z-api.io", "zapi.chat"},
		ZAPITypes: map[string]bool{
			"receivedcallback": true, "deliverycallback": true,
			"readcallback": true, "connectedcallback": true,
			"disconnectedcallback": true, "messagestatuscallback": true,
			"presencecallback": true, "chatpresencecallback": true,
		},
		StructuralCatalog: defaultStructuralCatalog(),
		Keywords:          defaultKeywordRules(),
		ProviderUserAgents: []UserAgentRule{
			{Pattern: regexp.MustCompile(`(?i)twilio`), Provider: "twilio"},
			{Pattern: regexp.MustCompile(`(?i)whatsapp`), Provider: "whatsapp"},
			{Pattern: regexp.MustCompile(`(?i)facebookexternalhit|meta`), Provider: "meta"},
			{Pattern: regexp.MustCompile(`(?i)telegram`), Provider: "telegram"},
		},
	}
}

// defaultStructuralCatalog is the closed, precedence-ordered catalog for
// cascade step 4 (§4.D). Order is load-bearing: the earliest matching
// rule wins.
func defaultStructuralCatalog() []StructuralRule {
	return []StructuralRule{
		{Kind: "QR", RequireKeys: []string{"qr"}},
		{Kind: "PairSuccess", RequireKeys: []string{"pairSuccess"}},
		{Kind: "LoggedOut", RequireKeys: []string{"reason"}, BodyContains: []string{"logged out"}},
		{Kind: "Connected", RequireKeys: []string{"connected"}},
		{Kind: "KeepAliveTimeout", RequireKeys: []string{"keepAliveTimeout"}},
		{Kind: "MediaRetry", RequireKeys: []string{"mediaRetry"}},
		{Kind: "HistorySync", RequireKeys: []string{"historySync"}},
		{Kind: "Blocklist", RequireKeys: []string{"blocklist"}},
		{Kind: "NewsletterJoin", RequireKeys: []string{"newsletter"}, BodyContains: []string{"join"}},
		{Kind: "NewsletterLeave", RequireKeys: []string{"newsletter"}, BodyContains: []string{"leave"}},
		{Kind: "Newsletter", RequireKeys: []string{"newsletter"}},
		{Kind: "Picture", RequireKeys: []string{"picture"}},
		{Kind: "ChatPresence", RequireKeys: []string{"chatPresence"}},
		{Kind: "Presence", RequireKeys: []string{"presence"}},
		{Kind: "Receipt", RequireKeys: []string{"receipt"}},
		{Kind: "Message", RequireKeys: []string{"message"}},
	}
}

func defaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{Kind: "Message", Keywords: []string{"message", "text", "caption"}},
		{Kind: "Status", Keywords: []string{"status", "delivered", "ack"}},
		{Kind: "Presence", Keywords: []string{"presence", "online", "lastseen"}},
		{Kind: "Media", Keywords: []string{"thumbnail", "mimetype", "filehash"}},
	}
}

// New constructs a Classifier with the given configuration.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// NewDefault constructs a Classifier with the shipped tables.
func NewDefault() *Classifier {
	return New(DefaultConfig())
}

// Classify assigns an EventKind to payload (a decoded JSON value, object
// or otherwise) plus request headers, by applying the first matching rule
// from the cascade (§4.D). Always operates on the pre-redaction payload.
func (c *Classifier) Classify(headers map[string]string, payload any) string {
	obj, isObj := payload.(map[string]any)
	if !isObj {
		return "Unknown"
	}

	if kind, ok := c.zAPI(headers, obj); ok {
		return kind
	}
	if kind, ok := c.metaCloud(obj); ok {
		return kind
	}
	if kind, ok := c.directTagFields(obj); ok {
		return kind
	}
	if kind, ok := c.structuralShape(obj); ok {
		return kind
	}
	if kind, ok := c.keywordScan(obj); ok {
		return kind
	}
	if kind, ok := c.genericProviderFallback(headers, obj); ok {
		return kind
	}
	return "Unknown"
}

// --- rule 1: Z-API-like ---------------------------------------------------

func (c *Classifier) zAPI(headers map[string]string, obj map[string]any) (string, bool) {
	vendorByHeader := false
	if server, ok := lookupHeader(headers, "Server"); ok && strings.EqualFold(server, c.cfg.ZAPIServerHeader) {
		vendorByHeader = true
	}
	if origin, ok := lookupHeader(headers, "Origin"); ok {
		lowered := strings.ToLower(origin)
		for _, host := range c.cfg.ZAPIOriginHosts {
			if strings.Contains(lowered, strings.ToLower(host)) {
				vendorByHeader = true
				break
			}
		}
	}

	typ, hasType := asString(obj["type"])
	_, hasInstance := asString(obj["instanceId"])
	vendorByShape := hasType && hasInstance && c.cfg.ZAPITypes[strings.ToLower(typ)]

	if !vendorByHeader && !vendorByShape {
		return "", false
	}

	lowerType := strings.ToLower(typ)
	lowerType = strings.TrimSuffix(lowerType, "callback")

	if strings.Contains(lowerType, "status") {
		status, _ := asString(obj["status"])
		sub := strings.ToLower(status)
		if isGroupOriginated(obj) {
			sub = "group_" + sub
		}
		return sanitizeKind("z_api/" + lowerType + "/" + sub), true
	}

	for _, field := range zAPISubTypeFields {
		if _, ok := obj[field]; ok {
			return sanitizeKind("z_api/" + lowerType + "/" + field), true
		}
	}

	return sanitizeKind("z_api/" + lowerType), true
}

func isGroupOriginated(obj map[string]any) bool {
	if v, ok := obj["isGroup"].(bool); ok {
		return v
	}
	if phone, ok := asString(obj["phone"]); ok {
		return strings.HasSuffix(phone, "@g.us") || strings.Contains(phone, "-")
	}
	return false
}

// --- rule 2: Meta Cloud-like ----------------------------------------------

func (c *Classifier) metaCloud(obj map[string]any) (string, bool) {
	object, ok := asString(obj["object"])
	if !ok || !strings.EqualFold(object, "whatsapp_business_account") {
		return "", false
	}

	entries, ok := obj["entry"].([]any)
	if !ok || len(entries) == 0 {
		return "", false
	}
	entry0, ok := entries[0].(map[string]any)
	if !ok {
		return "", false
	}
	changes, ok := entry0["changes"].([]any)
	if !ok || len(changes) == 0 {
		return "", false
	}
	change0, ok := changes[0].(map[string]any)
	if !ok {
		return "", false
	}
	value, _ := change0["value"].(map[string]any)
	if value == nil {
		return "", false
	}
	product, _ := asString(value["messaging_product"])
	if !strings.EqualFold(product, "whatsapp") {
		return "", false
	}
	field, _ := asString(change0["field"])
	if field == "" {
		return "", false
	}

	kind := "whatsapp_business_account/" + field
	if strings.EqualFold(field, "messages") {
		subType := "text"
		if msgs, ok := value["messages"].([]any); ok && len(msgs) > 0 {
			if msg0, ok := msgs[0].(map[string]any); ok {
				if t, ok := asString(msg0["type"]); ok && t != "" {
					subType = t
				}
			}
		}
		kind += "_" + subType
	}

	return sanitizeKind(kind), true
}

// --- rule 3: direct tag fields ---------------------------------------------

func (c *Classifier) directTagFields(obj map[string]any) (string, bool) {
	candidates := [][]string{
		{"eventType"},
		{"body", "eventType"},
		{"body", "data", "type"},
	}
	for _, path := range candidates {
		if v, ok := lookupPath(obj, path); ok {
			if s, ok := asString(v); ok && s != "" {
				return pascalCase(s), true
			}
		}
	}
	return "", false
}

// --- rule 4: structural shape fingerprints ---------------------------------

func (c *Classifier) structuralShape(obj map[string]any) (string, bool) {
	body := strings.ToLower(stringify(obj))
	for _, rule := range c.cfg.StructuralCatalog {
		if !hasAllKeys(obj, rule.RequireKeys) {
			continue
		}
		if !containsAll(body, rule.BodyContains) {
			continue
		}
		return rule.Kind, true
	}
	return "", false
}

// --- rule 5: keyword scan ---------------------------------------------------

func (c *Classifier) keywordScan(obj map[string]any) (string, bool) {
	joined := strings.ToLower(strings.Join(nestedKeys(obj), ","))
	for _, rule := range c.cfg.Keywords {
		for _, kw := range rule.Keywords {
			if strings.Contains(joined, strings.ToLower(kw)) {
				return rule.Kind, true
			}
		}
	}
	return "", false
}

// --- rule 6: generic provider fallback -------------------------------------

func (c *Classifier) genericProviderFallback(headers map[string]string, obj map[string]any) (string, bool) {
	provider := c.deriveProvider(headers)
	if provider == "" {
		return "", false
	}
	return sanitizeKind(provider + "/webhook"), true
}

func (c *Classifier) deriveProvider(headers map[string]string) string {
	if ua, ok := lookupHeader(headers, "User-Agent"); ok {
		for _, rule := range c.cfg.ProviderUserAgents {
			if rule.Pattern.MatchString(ua) {
				return rule.Provider
			}
		}
	}
	for k, v := range headers {
		if strings.HasPrefix(strings.ToLower(k), "x-") && strings.Contains(strings.ToLower(k), "provider") {
			if v != "" {
				return strings.ToLower(v)
			}
		}
	}
	if origin, ok := lookupHeader(headers, "Origin"); ok {
		host := origin
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		parts := strings.Split(host, ".")
		if len(parts) >= 2 {
			return strings.ToLower(parts[len(parts)-2])
		}
	}
	return ""
}

// --- shared helpers ---------------------------------------------------------

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func lookupPath(obj map[string]any, path []string) (any, bool) {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func hasAllKeys(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

func containsAll(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(haystack, strings.ToLower(t)) {
			return false
		}
	}
	return true
}

// nestedKeys returns every key encountered anywhere in obj, depth-first.
func nestedKeys(value any) []string {
	var keys []string
	var walk func(v any)
	walk = func(v any) {
		switch vv := v.(type) {
		case map[string]any:
			for k, child := range vv {
				keys = append(keys, k)
				walk(child)
			}
		case []any:
			for _, child := range vv {
				walk(child)
			}
		}
	}
	walk(value)
	return keys
}

// stringify renders value's string leaves (joined) for body-content token
// matching in the structural-shape cascade step.
func stringify(value any) string {
	var sb strings.Builder
	var walk func(v any)
	walk = func(v any) {
		switch vv := v.(type) {
		case map[string]any:
			for k, child := range vv {
				sb.WriteString(k)
				sb.WriteByte(' ')
				walk(child)
			}
		case []any:
			for _, child := range vv {
				walk(child)
			}
		case string:
			sb.WriteString(vv)
			sb.WriteByte(' ')
		}
	}
	walk(value)
	return sb.String()
}

// pascalCase normalizes an arbitrary tag string to a PascalCase
// identifier, splitting on any run of non-alphanumeric characters.
func pascalCase(s string) string {
	var sb strings.Builder
	wordStart := true
	for _, r := range s {
		if isAlnum(r) {
			if wordStart {
				sb.WriteRune(toUpper(r))
				wordStart = false
			} else {
				sb.WriteRune(r)
			}
		} else {
			wordStart = true
		}
	}
	return sb.String()
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

// sanitizeKind makes kind filesystem-safe (§3): '/' preserved as directory
// separator, every other non-alphanumeric replaced with '_'.
func sanitizeKind(kind string) string {
	var sb strings.Builder
	for _, r := range kind {
		switch {
		case r == '/':
			sb.WriteRune(r)
		case isAlnum(r):
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
