package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/internal/fulfillment"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

type stubFulfillmentService struct {
	shipment        *models.Shipment
	order           *models.SalesOrder
	events          []models.ShipmentEvent
	transitionInput *fulfillment.TransitionShipmentInput
	err             error
}

func (s *stubFulfillmentService) CreateShipment(ctx context.Context, input fulfillment.CreateShipmentInput) (*models.Shipment, error) {
	return s.shipment, s.err
}

func (s *stubFulfillmentService) TransitionShipment(ctx context.Context, input fulfillment.TransitionShipmentInput) (*models.Shipment, error) {
	s.transitionInput = &input
	return s.shipment, s.err
}

func (s *stubFulfillmentService) GetShipment(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	return s.shipment, s.err
}

func (s *stubFulfillmentService) ListShipmentEvents(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentEvent, error) {
	return s.events, s.err
}

func (s *stubFulfillmentService) CreateSalesOrder(ctx context.Context, input fulfillment.CreateSalesOrderInput) (*models.SalesOrder, error) {
	return s.order, s.err
}

func (s *stubFulfillmentService) TransitionSalesOrder(ctx context.Context, input fulfillment.TransitionSalesOrderInput) (*models.SalesOrder, error) {
	return s.order, s.err
}

func (s *stubFulfillmentService) GetSalesOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	return s.order, s.err
}

func routedRequest(t *testing.T, method, pattern, path string, handler http.HandlerFunc, body []byte, actorID string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.MethodFunc(method, pattern, handler)

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestShipmentTransitionSuccess(t *testing.T) {
	shipmentID := uuid.New()
	stub := &stubFulfillmentService{shipment: &models.Shipment{
		ID:     shipmentID,
		Status: enums.ShipmentStatusPicked,
	}}

	body, _ := json.Marshal(map[string]string{"status": "picked"})
	rec := routedRequest(t, http.MethodPost, "/shipments/{shipmentId}/transitions",
		"/shipments/"+shipmentID.String()+"/transitions",
		ShipmentTransition(stub, nil), body, uuid.NewString())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.transitionInput == nil {
		t.Fatal("service not called")
	}
	if stub.transitionInput.ShipmentID != shipmentID || stub.transitionInput.To != enums.ShipmentStatusPicked {
		t.Fatalf("unexpected input %+v", stub.transitionInput)
	}

	var envelope struct {
		Data shipmentResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != "picked" {
		t.Fatalf("unexpected status %s", envelope.Data.Status)
	}
}

func TestShipmentTransitionInvalidStatus(t *testing.T) {
	shipmentID := uuid.New()
	body, _ := json.Marshal(map[string]string{"status": "teleported"})
	rec := routedRequest(t, http.MethodPost, "/shipments/{shipmentId}/transitions",
		"/shipments/"+shipmentID.String()+"/transitions",
		ShipmentTransition(&stubFulfillmentService{}, nil), body, uuid.NewString())

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestShipmentTransitionStateConflict(t *testing.T) {
	shipmentID := uuid.New()
	stubErr := pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed").
		WithDetails(map[string]string{"from": "pending", "to": "delivered"})

	body, _ := json.Marshal(map[string]string{"status": "delivered"})
	rec := routedRequest(t, http.MethodPost, "/shipments/{shipmentId}/transitions",
		"/shipments/"+shipmentID.String()+"/transitions",
		ShipmentTransition(&stubFulfillmentService{err: stubErr}, nil), body, uuid.NewString())

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}

func TestShipmentFetchBadID(t *testing.T) {
	rec := routedRequest(t, http.MethodGet, "/shipments/{shipmentId}",
		"/shipments/not-a-uuid",
		ShipmentFetch(&stubFulfillmentService{}, nil), nil, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
