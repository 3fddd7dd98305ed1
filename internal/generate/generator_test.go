package generate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/generate"
)

func TestHTTPGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"segments":["part one","part two"],"topic":"ai","source_refs":["https://example.com/a"]}`))
	}))
	defer server.Close()

	gen := generate.NewHTTPGenerator(server.URL, "secret")
	res, err := gen.Generate(context.Background(), generate.Request{
		Kind: domain.KindThread,
		Day:  "2025-06-02",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"part one", "part two"}, res.Segments)
	assert.Equal(t, "ai", res.Topic)
}

func TestHTTPGenerator_BadResponses(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"empty segments", http.StatusOK, `{"segments":[]}`},
		{"blank segment", http.StatusOK, `{"segments":["  "]}`},
		{"not json", http.StatusOK, `not json`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			gen := generate.NewHTTPGenerator(server.URL, "")
			_, err := gen.Generate(context.Background(), generate.Request{Kind: domain.KindHeadline})
			require.ErrorIs(t, err, domain.ErrGeneration)
		})
	}
}

func TestStaticGenerator_RotatesAndCoversAllKinds(t *testing.T) {
	gen := generate.NewStaticGenerator(generate.DefaultLibrary())

	for _, kind := range domain.Kinds() {
		res, err := gen.Generate(context.Background(), generate.Request{Kind: kind})
		require.NoError(t, err, "kind %s", kind)
		assert.NotEmpty(t, res.Segments)
	}

	gen = generate.NewStaticGenerator(map[domain.Kind][][]string{
		domain.KindHeadline: {{"first"}, {"second"}},
	})
	a, _ := gen.Generate(context.Background(), generate.Request{Kind: domain.KindHeadline})
	b, _ := gen.Generate(context.Background(), generate.Request{Kind: domain.KindHeadline})
	c, _ := gen.Generate(context.Background(), generate.Request{Kind: domain.KindHeadline})
	assert.Equal(t, "first", a.Segments[0])
	assert.Equal(t, "second", b.Segments[0])
	assert.Equal(t, "first", c.Segments[0], "rotation wraps")
}

func TestStaticGenerator_ConcurrentCalls(t *testing.T) {
	gen := generate.NewStaticGenerator(generate.DefaultLibrary())
	kinds := domain.Kinds()

	var wg sync.WaitGroup
	errs := make(chan error, 8*len(kinds)*20)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 20*len(kinds); i++ {
				kind := kinds[(seed+i)%len(kinds)]
				if _, err := gen.Generate(context.Background(), generate.Request{Kind: kind}); err != nil {
					errs <- err
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Generate: %v", err)
	}
}

func TestStaticGenerator_UnknownKind(t *testing.T) {
	gen := generate.NewStaticGenerator(map[domain.Kind][][]string{})
	_, err := gen.Generate(context.Background(), generate.Request{Kind: domain.KindHeadline})
	require.ErrorIs(t, err, domain.ErrGeneration)
}

type fixedGenerator struct {
	res *generate.Result
	err error
}

func (f *fixedGenerator) Generate(context.Context, generate.Request) (*generate.Result, error) {
	return f.res, f.err
}

func TestWithFallback(t *testing.T) {
	ok := &fixedGenerator{res: &generate.Result{Segments: []string{"content"}}}
	broken := &fixedGenerator{err: errors.New("service down")}

	res, err := generate.WithFallback(broken, ok).Generate(context.Background(), generate.Request{})
	require.NoError(t, err)
	assert.Equal(t, "content", res.Segments[0])

	res, err = generate.WithFallback(ok, broken).Generate(context.Background(), generate.Request{})
	require.NoError(t, err, "primary success never consults fallback")
	assert.Equal(t, "content", res.Segments[0])

	_, err = generate.WithFallback(broken, broken).Generate(context.Background(), generate.Request{})
	require.Error(t, err)
}
