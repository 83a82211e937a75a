package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"integrationhub/internal/automowerapi"
	"integrationhub/internal/entity"
	"integrationhub/pkg/testutil"

	"github.com/stretchr/testify/require"
)

const (
	testMowerID       = "c7233734-b219-4287-a173-08e3643f89f0"
	frontLawnID       = 123456
	cuttingHeightID   = "number.test_mower_1_cutting_height"
	frontLawnEntityID = "number.test_mower_1_front_lawn_cutting_height"
	myLawnEntityID    = "number.test_mower_1_my_lawn_cutting_height"
)

func testMowers() map[string]*automowerapi.MowerAttributes {
	return map[string]*automowerapi.MowerAttributes{
		testMowerID: {
			Name:          "Test Mower 1",
			Model:         "450XH-TEST",
			SerialNumber:  123,
			Capabilities:  automowerapi.Capabilities{WorkAreas: true, Headlights: true},
			Mower:         automowerapi.MowerState{Mode: "MAIN_AREA", Activity: "PARKED_IN_CS", State: "RESTRICTED"},
			Battery:       automowerapi.Battery{Level: 100},
			Connected:     true,
			CuttingHeight: automowerapi.IntPtr(4),
			WorkAreas: map[int]automowerapi.WorkArea{
				0:           {Name: "my lawn", CuttingHeight: 50},
				frontLawnID: {Name: "Front lawn", CuttingHeight: 50},
			},
		},
	}
}

// setupTest starts a hub against the mock mower cloud
func setupTest(t *testing.T, opts testutil.EnvOptions) *testutil.TestEnv {
	t.Helper()
	env, err := testutil.NewTestEnv(testMowers(), opts)
	require.NoError(t, err)
	t.Cleanup(env.Cleanup)
	return env
}

// request sends a request through the hub's HTTP API
func request(env *testutil.TestEnv, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	env.API.Handler().ServeHTTP(w, req)
	return w
}

func setValue(env *testutil.TestEnv, entityID string, value float64) *httptest.ResponseRecorder {
	return request(env, http.MethodPost, "/api/services/number/set_value", map[string]any{
		"entity_id": entityID,
		"value":     value,
	})
}

func entityState(t *testing.T, env *testutil.TestEnv, entityID string) entity.State {
	t.Helper()
	st, ok := env.Hub.Numbers().State(entityID)
	require.True(t, ok, "%s is not loaded", entityID)
	return st
}
