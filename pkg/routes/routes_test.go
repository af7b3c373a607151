package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_URL(t *testing.T) {
	reg := New(nil)
	reg.Get("home", "/", func(w http.ResponseWriter, r *http.Request) {})
	reg.Get("posts.show", "/posts/{id}", func(w http.ResponseWriter, r *http.Request) {})
	reg.Get("users.post", "/users/{user}/posts/{id:[0-9]{1,5}}", func(w http.ResponseWriter, r *http.Request) {})
	reg.Get("files", "/files/*", func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name   string
		route  string
		params map[string]string
		want   string
	}{
		{"root", "home", nil, "/"},
		{"param", "posts.show", map[string]string{"id": "7"}, "/posts/7"},
		{"extra query", "posts.show", map[string]string{"id": "7", "tab": "a b", "b": "1"}, "/posts/7?b=1&tab=a+b"},
		{"regexp param", "users.post", map[string]string{"user": "ada", "id": "12"}, "/users/ada/posts/12"},
		{"escaped", "posts.show", map[string]string{"id": "a/b"}, "/posts/a%2Fb"},
		{"wildcard", "files", map[string]string{"*": "docs/read me.txt"}, "/files/docs/read%20me.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.URL(tt.route, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := New(nil)
	require.NoError(t, reg.Name("posts.show", "/posts/{id}"))

	_, err := reg.URL("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownRoute)

	_, err = reg.URL("posts.show", nil)
	assert.ErrorIs(t, err, ErrMissingParam)

	assert.ErrorIs(t, reg.Name("posts.show", "/other"), ErrDuplicateRoute)
	assert.True(t, reg.Has("posts.show"))
	assert.False(t, reg.Has("nope"))
}

func TestRegistry_ServesMountedRoutes(t *testing.T) {
	reg := New(nil)
	reg.Post("counter.increment", "/counter/increment", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/counter/increment", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
