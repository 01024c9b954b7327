package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/admin"
	"github.com/chachabrian/mooveit-dispatch/internal/directory"
	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/internal/realtime"
	"github.com/chachabrian/mooveit-dispatch/internal/store"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type api struct {
	t      *testing.T
	router *gin.Engine
}

func setupAPI(t *testing.T) *api {
	t.Helper()
	log := zap.NewNop()
	rides := store.NewMemoryRideStore()
	dir := directory.NewStatic(
		models.User{ID: "p1", Name: "Asha", UserType: "passenger"},
		models.User{ID: "d1", Name: "Ravi", UserType: "driver", DriverRegistered: true, DriverApproved: true},
		models.User{ID: "d2", Name: "Kofi", UserType: "driver", DriverRegistered: true},
	)
	svc := dispatch.NewService(rides, store.NewMemoryLocationStore(), dir, dispatch.NopNotifier{}, dispatch.Config{}, log)
	hub := realtime.NewHub(log)

	router := NewRouter(Deps{
		Service:    svc,
		Aggregator: admin.NewAggregator(rides, dir),
		Gateway:    realtime.NewGateway(hub, svc, log),
		Hub:        hub,
		JWTSecret:  secret,
		Logger:     log,
	})
	return &api{t: t, router: router}
}

// do sends a request as userID (no auth header when userID is empty) and
// decodes the JSON response.
func (a *api) do(method, path, userID, userType string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		tok, err := utils.GenerateToken(secret, userID, userType, time.Hour)
		if err != nil {
			a.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			a.t.Fatalf("%s %s: invalid JSON %q", method, path, w.Body.String())
		}
	}
	return w.Code, out
}

var rideBody = map[string]interface{}{
	"origin":      map[string]interface{}{"address": "Hauz Khas", "lat": 28.544, "lng": 77.1926},
	"destination": map[string]interface{}{"address": "Green Park", "lat": 28.547, "lng": 77.19},
}

func (a *api) createRide() string {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/api/rides", "p1", "passenger", rideBody)
	if code != http.StatusCreated {
		a.t.Fatalf("create ride: %d %v", code, body)
	}
	return body["ride"].(map[string]interface{})["id"].(string)
}

func TestRides_Lifecycle(t *testing.T) {
	a := setupAPI(t)
	id := a.createRide()

	code, body := a.do(http.MethodGet, "/api/rides/open?lat=28.544&lng=77.19&radiusKm=5", "d1", "driver", nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("open rides: %d %v", code, body)
	}

	code, body = a.do(http.MethodPost, "/api/rides/"+id+"/accept", "d1", "driver", nil)
	if code != http.StatusOK {
		t.Fatalf("accept: %d %v", code, body)
	}
	if body["driver"].(map[string]interface{})["name"] != "Ravi" || body["passenger"].(map[string]interface{})["name"] != "Asha" {
		t.Errorf("accept should resolve both parties: %v", body)
	}

	code, body = a.do(http.MethodPost, "/api/rides/"+id+"/accept", "d2", "driver", nil)
	if code != http.StatusConflict {
		t.Fatalf("second accept: expected 409, got %d %v", code, body)
	}

	if code, body = a.do(http.MethodPost, "/api/rides/"+id+"/start", "d2", "driver", nil); code != http.StatusNotFound {
		t.Errorf("start by another driver: expected 404, got %d %v", code, body)
	}
	if code, body = a.do(http.MethodPost, "/api/rides/"+id+"/start", "d1", "driver", nil); code != http.StatusOK {
		t.Fatalf("start: %d %v", code, body)
	}

	code, body = a.do(http.MethodPost, "/api/rides/"+id+"/complete", "d1", "driver", map[string]int{"actualDurationMins": 12})
	if code != http.StatusOK {
		t.Fatalf("complete: %d %v", code, body)
	}
	ride := body["ride"].(map[string]interface{})
	if ride["status"] != "COMPLETED" || ride["actualDurationMins"].(float64) != 12 || ride["version"].(float64) != 4 {
		t.Errorf("unexpected completed ride: %v", ride)
	}

	code, body = a.do(http.MethodPost, "/api/rides/"+id+"/cancel", "p1", "passenger", map[string]string{"reason": "late"})
	if code != http.StatusConflict {
		t.Errorf("cancel completed: expected 409, got %d %v", code, body)
	}

	code, body = a.do(http.MethodGet, "/api/rides/user/p1", "p1", "passenger", nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Errorf("user rides: %d %v", code, body)
	}
}

func TestRides_ConcurrentAccept(t *testing.T) {
	a := setupAPI(t)
	id := a.createRide()

	const drivers = 16
	codes := make(chan int, drivers)
	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, _ := a.do(http.MethodPost, "/api/rides/"+id+"/accept", "driver-"+string(rune('a'+i)), "driver", nil)
			codes <- code
		}(i)
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusConflict] != drivers-1 {
		t.Errorf("expected one 200 and %d 409s, got %v", drivers-1, counts)
	}
}

func TestRides_Errors(t *testing.T) {
	a := setupAPI(t)
	id := a.createRide()

	cases := []struct {
		name     string
		method   string
		path     string
		userID   string
		userType string
		body     interface{}
		want     int
		message  string
	}{
		{"no token", http.MethodGet, "/api/rides/open", "", "", nil, http.StatusUnauthorized, ""},
		{"malformed body", http.MethodPost, "/api/rides", "p1", "passenger", "not an object", http.StatusBadRequest, "Invalid request body"},
		{"missing field", http.MethodPost, "/api/rides", "p1", "passenger", map[string]interface{}{"origin": map[string]interface{}{"address": "x", "lat": 1, "lng": 1}}, http.StatusBadRequest, "destination.address is required"},
		{"half a point", http.MethodGet, "/api/rides/open?lat=28.5", "d1", "driver", nil, http.StatusBadRequest, "lat and lng are required together"},
		{"bad radius", http.MethodGet, "/api/rides/open?lat=28.5&lng=77.2&radiusKm=-3", "d1", "driver", nil, http.StatusBadRequest, "radiusKm"},
		{"nearby without point", http.MethodGet, "/api/rides/nearby-drivers", "p1", "passenger", nil, http.StatusBadRequest, "lat and lng"},
		{"unknown ride", http.MethodGet, "/api/rides/nope", "p1", "passenger", nil, http.StatusNotFound, "ride not found"},
		{"stranger reads ride", http.MethodGet, "/api/rides/" + id, "p2", "passenger", nil, http.StatusForbidden, ""},
		{"stranger cancels", http.MethodPost, "/api/rides/" + id + "/cancel", "p2", "passenger", nil, http.StatusForbidden, ""},
		{"other user's rides", http.MethodGet, "/api/rides/user/p1", "p2", "passenger", nil, http.StatusForbidden, ""},
		{"passenger pushes location", http.MethodPost, "/api/driver/location", "p1", "passenger", map[string]float64{"lat": 1, "lng": 1}, http.StatusForbidden, ""},
		{"driver reads overview", http.MethodGet, "/api/admin/rides/overview", "d1", "driver", nil, http.StatusForbidden, ""},
		{"passenger accepts", http.MethodPost, "/api/rides/" + id + "/accept", "p1", "passenger", nil, http.StatusForbidden, "Access denied"},
		{"passenger starts", http.MethodPost, "/api/rides/" + id + "/start", "p1", "passenger", nil, http.StatusForbidden, "Access denied"},
		{"passenger completes", http.MethodPost, "/api/rides/" + id + "/complete", "p1", "passenger", nil, http.StatusForbidden, "Access denied"},
		{"NaN point", http.MethodGet, "/api/rides/open?lat=NaN&lng=NaN&radiusKm=NaN", "d1", "driver", nil, http.StatusBadRequest, "invalid latitude"},
		{"infinite radius", http.MethodGet, "/api/rides/open?lat=28.5&lng=77.2&radiusKm=Inf", "d1", "driver", nil, http.StatusBadRequest, "radiusKm"},
		{"infinite nearby point", http.MethodGet, "/api/rides/nearby-drivers?lat=28.5&lng=-Inf", "p1", "passenger", nil, http.StatusBadRequest, "invalid longitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := a.do(tc.method, tc.path, tc.userID, tc.userType, tc.body)
			if code != tc.want {
				t.Fatalf("expected %d, got %d %v", tc.want, code, body)
			}
			if tc.message != "" {
				msg, _ := body["error"].(string)
				if !bytes.Contains([]byte(msg), []byte(tc.message)) {
					t.Errorf("expected error containing %q, got %q", tc.message, msg)
				}
			}
		})
	}
}

func TestRides_CancelByPassenger(t *testing.T) {
	a := setupAPI(t)
	id := a.createRide()

	code, body := a.do(http.MethodPost, "/api/rides/"+id+"/cancel", "p1", "passenger", nil)
	if code != http.StatusOK {
		t.Fatalf("cancel: %d %v", code, body)
	}
	if status := body["ride"].(map[string]interface{})["status"]; status != "CANCELLED" {
		t.Errorf("expected CANCELLED, got %v", status)
	}

	code, body = a.do(http.MethodGet, "/api/rides/open", "d1", "driver", nil)
	if code != http.StatusOK || body["count"].(float64) != 0 {
		t.Errorf("cancelled ride still open: %v", body)
	}
}

func TestDriverLocationAndNearby(t *testing.T) {
	a := setupAPI(t)

	code, body := a.do(http.MethodPost, "/api/driver/location", "d1", "driver", map[string]float64{"lat": 28.545, "lng": 77.192, "heading": 90})
	if code != http.StatusOK {
		t.Fatalf("push location: %d %v", code, body)
	}
	if code, body = a.do(http.MethodPost, "/api/driver/location", "d2", "driver", map[string]float64{"lat": 28.9, "lng": 77.5}); code != http.StatusOK {
		t.Fatalf("push location: %d %v", code, body)
	}
	if code, _ = a.do(http.MethodPost, "/api/driver/location", "d1", "driver", map[string]float64{"lat": 91, "lng": 0}); code != http.StatusBadRequest {
		t.Errorf("out of range latitude: expected 400, got %d", code)
	}

	code, body = a.do(http.MethodGet, "/api/rides/nearby-drivers?lat=28.544&lng=77.19&radiusKm=3", "p1", "passenger", nil)
	if code != http.StatusOK {
		t.Fatalf("nearby: %d %v", code, body)
	}
	drivers := body["drivers"].([]interface{})
	if len(drivers) != 1 {
		t.Fatalf("expected 1 nearby driver, got %v", drivers)
	}
	loc := drivers[0].(map[string]interface{})["location"].(map[string]interface{})
	if loc["driverId"] != "d1" {
		t.Errorf("expected d1, got %v", loc)
	}
}

func TestAdminOverview(t *testing.T) {
	a := setupAPI(t)
	a.createRide()
	id := a.createRide()
	if code, body := a.do(http.MethodPost, "/api/rides/"+id+"/accept", "d1", "driver", nil); code != http.StatusOK {
		t.Fatalf("accept: %d %v", code, body)
	}

	code, body := a.do(http.MethodGet, "/api/admin/rides/overview", "a1", "admin", nil)
	if code != http.StatusOK {
		t.Fatalf("overview: %d %v", code, body)
	}
	overview := body["overview"].(map[string]interface{})
	rides := overview["rides"].(map[string]interface{})
	if rides["open"].(float64) != 1 || rides["assigned"].(float64) != 1 {
		t.Errorf("unexpected ride counts: %v", rides)
	}
	drivers := overview["drivers"].(map[string]interface{})
	if drivers["registered"].(float64) != 2 || drivers["approved"].(float64) != 1 {
		t.Errorf("unexpected driver counts: %v", drivers)
	}
}

func TestHealth(t *testing.T) {
	a := setupAPI(t)
	code, body := a.do(http.MethodGet, "/health", "", "", nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", code, body)
	}
}
