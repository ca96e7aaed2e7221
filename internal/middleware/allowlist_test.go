package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pkrlabs/pkr-issuer/utils"
)

func allowlistStatus(t *testing.T, cidrs string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/hook", IPAllowlist(cidrs, utils.InitLogger()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// httptest requests arrive from 192.0.2.1.
	req := httptest.NewRequest(http.MethodGet, "/hook", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestIPAllowlist(t *testing.T) {
	cases := []struct {
		name  string
		cidrs string
		want  int
	}{
		{"empty list allows all", "", http.StatusOK},
		{"matching range", "192.0.2.0/24", http.StatusOK},
		{"non-matching range", "10.0.0.0/8", http.StatusForbidden},
		{"second range matches", "10.0.0.0/8, 192.0.2.0/24", http.StatusOK},
		{"invalid entries are skipped", "not-a-cidr, 192.0.2.0/24", http.StatusOK},
		{"only invalid entries allow all", "not-a-cidr", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := allowlistStatus(t, tc.cidrs); got != tc.want {
				t.Fatalf("status = %d, want %d", got, tc.want)
			}
		})
	}
}
