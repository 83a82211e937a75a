package fleetapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("token", zap.NewNop(), WithBaseURL(server.URL))
}

func TestClient_Products(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/1/products", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		io.WriteString(w, `{"response":[
			{"id":1234,"vehicle_id":5678,"vin":"LRWXF7EK4KC700000","display_name":"Test","state":"online"},
			{"energy_site_id":123456,"site_name":"Energy Site"}
		],"count":2}`)
	})

	products, err := client.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.True(t, products[0].IsVehicle())
	assert.False(t, products[0].IsEnergySite())
	assert.Equal(t, "LRWXF7EK4KC700000", products[0].VIN)
	assert.Equal(t, "online", products[0].State)

	assert.True(t, products[1].IsEnergySite())
	assert.Equal(t, int64(123456), products[1].EnergySiteID)
}

func TestClient_VehicleData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/1/vehicles/VIN1/vehicle_data", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("endpoints"), "charge_state;climate_state")
		io.WriteString(w, `{"response":{"state":"online","charge_state":{"battery_level":77}}}`)
	})

	data, err := client.VehicleData(context.Background(), "VIN1")
	require.NoError(t, err)
	assert.Equal(t, "online", data["state"])
	assert.Equal(t, float64(77), data["charge_state"].(map[string]any)["battery_level"])
}

func TestClient_EnergySite(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/1/energy_sites/42/live_status":
			io.WriteString(w, `{"response":{"solar_power":1200}}`)
		case "/api/1/energy_sites/42/site_info":
			io.WriteString(w, `{"response":{"backup_reserve_percent":20,"components":{"battery":true}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	live, err := client.LiveStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, float64(1200), live["solar_power"])

	info, err := client.SiteInfo(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, float64(20), info["backup_reserve_percent"])
}

func TestClient_Commands(t *testing.T) {
	var paths []string
	var bodies []map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, body)
		io.WriteString(w, `{"response":{"result":true,"reason":""}}`)
	})

	require.NoError(t, client.SetChargeLimit(context.Background(), "VIN1", 80))
	require.NoError(t, client.SetBackupReserve(context.Background(), 42, 30))

	assert.Equal(t, []string{"/api/1/vehicles/VIN1/command/set_charge_limit", "/api/1/energy_sites/42/backup"}, paths)
	assert.Equal(t, float64(80), bodies[0]["percent"])
	assert.Equal(t, float64(30), bodies[1]["backup_reserve_percent"])
}

func TestClient_CommandRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"result":false,"reason":"already_set"}}`)
	})

	err := client.SetChargeLimit(context.Background(), "VIN1", 80)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFleet)
	assert.EqualError(t, err, "already_set")
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_token","error_description":"The OAuth token is invalid"}`, ErrInvalidToken},
		{"payment required", http.StatusPaymentRequired, `{"error":"subscription_required"}`, ErrSubscriptionRequired},
		{"offline", http.StatusRequestTimeout, `{"error":"vehicle is offline or asleep"}`, ErrVehicleOffline},
		{"server error", http.StatusInternalServerError, "boom", ErrFleet},
		{"code in body", http.StatusBadRequest, `{"error":"invalid_token"}`, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := client.Products(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, ErrFleet)

			var fleetErr *Error
			require.True(t, errors.As(err, &fleetErr))
			assert.Equal(t, tt.status, fleetErr.StatusCode)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	client := NewClient("token", zap.NewNop(), WithBaseURL("http://127.0.0.1:1"))
	_, err := client.Products(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFleet)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestError(t *testing.T) {
	err := NewError(ErrVehicleOffline, "")
	assert.EqualError(t, err, "vehicle offline")
	assert.ErrorIs(t, err, ErrVehicleOffline)
	assert.NotErrorIs(t, err, ErrInvalidToken)

	generic := &Error{Message: "oops", StatusCode: 500}
	assert.EqualError(t, generic, "oops (status 500)")
	assert.ErrorIs(t, generic, ErrFleet)
}

func TestFlatten(t *testing.T) {
	in := map[string]any{
		"state": "online",
		"charge_state": map[string]any{
			"battery_level": 77,
			"nested":        map[string]any{"deep": true},
		},
		"list": []any{1, 2},
	}

	out := Flatten(in)
	assert.Equal(t, map[string]any{
		"state":                      "online",
		"charge_state_battery_level": 77,
		"charge_state_nested_deep":   true,
		"list":                       []any{1, 2},
	}, out)
}
