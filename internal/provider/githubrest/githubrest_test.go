package githubrest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	llmerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/provider"
)

func TestBuildRequestUnsupported(t *testing.T) {
	p, _ := New(provider.Config{})
	gp := p.(*Provider)
	_, err := gp.BuildRequest(nil, nil)
	assert.Error(t, err)
}

func TestMapErrorClassification(t *testing.T) {
	p, _ := New(provider.Config{})
	gp := p.(*Provider)
	assert.True(t, llmerrors.Is(gp.MapError(http.StatusForbidden, []byte("nope"), nil), llmerrors.KindAuth))
	assert.True(t, llmerrors.Is(gp.MapError(http.StatusTooManyRequests, nil, nil), llmerrors.KindUpstreamRateLimited))
	assert.True(t, llmerrors.Is(gp.MapError(http.StatusBadGateway, nil, nil), llmerrors.KindUpstreamTransient))
}
