// Package intent turns inbound WhatsApp message content into a parsed
// message and a closed-set intent.
package intent

import "strings"

// Intent is the detected purpose of a customer message.
type Intent string

const (
	Greeting    Intent = "greeting"
	Browse      Intent = "browse"
	Purchase    Intent = "purchase"
	OrderStatus Intent = "order_status"
	Cart        Intent = "cart"
	Checkout    Intent = "checkout"
	Support     Intent = "support"
	Cancel      Intent = "cancel"
	Thanks      Intent = "thanks"
	Unknown     Intent = "unknown"
)

// Rule maps an intent to the keywords that signal it.
type Rule struct {
	Intent   Intent
	Keywords []string
}

// Filter may replace the detected intent before it is returned.
type Filter func(text string, detected Intent) Intent

// DefaultRules is the built-in keyword table. Order only breaks ties.
func DefaultRules() []Rule {
	return []Rule{
		{Intent: Greeting, Keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "hola"}},
		{Intent: Browse, Keywords: []string{"catalog", "catalogue", "products", "menu", "shop", "browse", "show me"}},
		{Intent: Purchase, Keywords: []string{"buy", "order", "purchase", "i want"}},
		{Intent: OrderStatus, Keywords: []string{"order status", "track", "tracking", "where is my order", "delivery status"}},
		{Intent: Cart, Keywords: []string{"cart", "basket", "my items"}},
		{Intent: Checkout, Keywords: []string{"checkout", "check out", "pay", "payment"}},
		{Intent: Support, Keywords: []string{"help", "support", "agent", "human", "problem", "complaint"}},
		{Intent: Cancel, Keywords: []string{"cancel", "stop", "unsubscribe"}},
		{Intent: Thanks, Keywords: []string{"thanks", "thank you", "thx"}},
	}
}

// Classifier picks the intent whose matching keyword is longest.
type Classifier struct {
	rules  []Rule
	filter Filter
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFilter installs a post-processing hook.
func WithFilter(f Filter) Option {
	return func(c *Classifier) { c.filter = f }
}

// WithRules replaces the default keyword table.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) { c.rules = rules }
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{rules: DefaultRules()}
	for _, opt := range opts {
		opt(c)
	}
	normalized := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(strings.TrimSpace(kw))
		}
		normalized[i] = Rule{Intent: r.Intent, Keywords: kws}
	}
	c.rules = normalized
	return c
}

// Classify returns Unknown for empty input. Every keyword is checked so a
// later, longer keyword can beat an earlier, shorter one; equal lengths keep
// the earlier rule.
func (c *Classifier) Classify(text string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return c.apply(text, Unknown)
	}

	best := Unknown
	bestLen := 0
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if kw == "" || !strings.Contains(normalized, kw) {
				continue
			}
			if len(kw) > bestLen {
				best = rule.Intent
				bestLen = len(kw)
			}
		}
	}
	return c.apply(text, best)
}

// ClassifyValue classifies arbitrary decoded JSON; non-strings are Unknown.
func (c *Classifier) ClassifyValue(v any) Intent {
	s, ok := v.(string)
	if !ok {
		return Unknown
	}
	return c.Classify(s)
}

func (c *Classifier) apply(text string, detected Intent) Intent {
	if c.filter == nil {
		return detected
	}
	if out := c.filter(text, detected); out != "" {
		return out
	}
	return detected
}
