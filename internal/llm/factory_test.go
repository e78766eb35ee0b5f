package llm

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFactoryCreate_NoProvider(t *testing.T) {
	f := NewFactory()
	for _, name := range []string{"", "none"} {
		p, err := f.Create(ProviderConfig{Provider: name})
		if err != nil || p != nil {
			t.Errorf("Create(%q) = %v, %v; want nil, nil", name, p, err)
		}
	}
}

func TestFactoryCreate_Unknown(t *testing.T) {
	f := NewFactory()
	f.Register("groq", func(ProviderConfig) (Provider, error) { return &scriptedProvider{}, nil })
	_, err := f.Create(ProviderConfig{Provider: "mystery"})
	if err == nil || !strings.Contains(err.Error(), "groq") {
		t.Fatalf("expected error listing registered providers, got %v", err)
	}
}

func TestFactoryCreate_ConstructorError(t *testing.T) {
	f := NewFactory()
	want := errors.New("constructor failed")
	f.Register("bad", func(ProviderConfig) (Provider, error) { return nil, want })
	if _, err := f.Create(ProviderConfig{Provider: "bad"}); !errors.Is(err, want) {
		t.Fatalf("expected constructor error, got %v", err)
	}
}

func TestFactoryCreate_Wrapping(t *testing.T) {
	f := NewFactory()
	f.Register("test", func(ProviderConfig) (Provider, error) { return &scriptedProvider{name: "inner"}, nil })

	tests := []struct {
		name string
		cfg  ProviderConfig
		want string
	}{
		{"bare", ProviderConfig{Provider: "test"}, "*llm.scriptedProvider"},
		{"retry", ProviderConfig{Provider: "test", MaxRetries: 2}, "*llm.RetryProvider"},
		{"rate only", ProviderConfig{Provider: "test", RateLimit: &RateLimitConfig{}}, "*llm.RateLimitProvider"},
		{"both", ProviderConfig{Provider: "test", Timeout: time.Second, RateLimit: &RateLimitConfig{}}, "*llm.RetryProvider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.Create(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if got := typeName(p); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if p.Name() != "inner" {
				t.Errorf("name not delegated: %s", p.Name())
			}
		})
	}
}

func TestFactoryNamesSorted(t *testing.T) {
	f := NewFactory()
	for _, n := range []string{"openai", "groq", "custom"} {
		f.Register(n, nil)
	}
	if got := strings.Join(f.Names(), ","); got != "custom,groq,openai" {
		t.Fatalf("unexpected names %s", got)
	}
}

func TestKnownProvidersGroq(t *testing.T) {
	if KnownProviders["groq"] != "https://api.groq.com/openai/v1" {
		t.Fatalf("unexpected groq URL %q", KnownProviders["groq"])
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *RetryProvider:
		return "*llm.RetryProvider"
	case *RateLimitProvider:
		return "*llm.RateLimitProvider"
	case *scriptedProvider:
		return "*llm.scriptedProvider"
	}
	return "unknown"
}
