package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "/", DefaultLimit, 0},
		{"explicit limit and offset", "/?limit=10&offset=30", 10, 30},
		{"limit capped", "/?limit=500", MaxLimit, 0},
		{"negative limit falls back", "/?limit=-5", DefaultLimit, 0},
		{"page style", "/?page=3&limit=10", 10, 20},
		{"page one is offset zero", "/?page=1&limit=10", 10, 0},
		{"offset wins over page", "/?offset=5&page=3&limit=10", 10, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := paramsFor(tc.target)
			if p.Limit != tc.wantLimit || p.Offset != tc.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d",
					p.Limit, p.Offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}

func TestParams_SQL(t *testing.T) {
	p := Params{Limit: 25, Offset: 50}
	if got := p.SQL(); got != "LIMIT 25 OFFSET 50" {
		t.Errorf("unexpected clause: %q", got)
	}
}

func TestParams_HasNext(t *testing.T) {
	p := Params{Limit: 20, Offset: 0}
	if !p.HasNext(21) {
		t.Error("expected next page when total exceeds window")
	}
	if p.HasNext(20) {
		t.Error("no next page when window covers total")
	}
	if p.NextOffset() != 20 {
		t.Errorf("unexpected next offset %d", p.NextOffset())
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 10, 2, 0)
	if !r.HasMore {
		t.Error("expected has_more for partial window")
	}
	r = NewResponse([]int{1, 2}, 2, 2, 0)
	if r.HasMore {
		t.Error("expected no more results")
	}
}
