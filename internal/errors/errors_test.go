package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("chapter"), http.StatusNotFound},
		{InvalidInput("bad"), http.StatusBadRequest},
		{fmt.Errorf("lookup: %w", Forbidden("nope")), http.StatusForbidden},
		{fmt.Errorf("plain failure"), http.StatusInternalServerError},
		{nil, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
