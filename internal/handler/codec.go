package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery-orders/internal/domain/offer"
	"github.com/xenking/food-delivery-orders/internal/domain/order"
)

// errMalformed marks request bodies that are not valid JSON for the
// endpoint. It maps to 400.
var errMalformed = errors.New("malformed request body")

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, malformed(err)
	}
	return body, nil
}

func malformed(err error) error {
	return errors.Errorf("%w: %s", errMalformed, err)
}

type itemInput struct {
	ProductID int64
	Quantity  int
}

type createOrderInput struct {
	RestaurantID      int64
	DeliveryAddressID int64
	Items             []itemInput
	PaymentMethod     string
	Notes             string
}

func decodeItems(d *jx.Decoder) ([]itemInput, error) {
	var items []itemInput
	err := d.Arr(func(d *jx.Decoder) error {
		var it itemInput
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				it.ProductID, err = d.Int64()
			case "quantity":
				it.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func decodeCreateOrder(body []byte) (createOrderInput, error) {
	var in createOrderInput
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "restaurantId":
			in.RestaurantID, err = d.Int64()
		case "deliveryAddressId":
			in.DeliveryAddressID, err = d.Int64()
		case "items":
			in.Items, err = decodeItems(d)
		case "paymentMethod":
			in.PaymentMethod, err = d.Str()
		case "notes":
			if d.Next() == jx.Null {
				return d.Null()
			}
			in.Notes, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return createOrderInput{}, malformed(err)
	}
	return in, nil
}

func decodeQuote(body []byte) ([]itemInput, error) {
	var items []itemInput
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		var err error
		items, err = decodeItems(d)
		return err
	})
	if err != nil {
		return nil, malformed(err)
	}
	return items, nil
}

func decodeStatus(body []byte) (order.Status, error) {
	var status string
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return err
	})
	if err != nil {
		return "", malformed(err)
	}
	return order.Status(status), nil
}

func toItemRequests(in []itemInput) []order.ItemRequest {
	out := make([]order.ItemRequest, len(in))
	for i, it := range in {
		out[i] = order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

// money writes a monetary amount as a JSON number with two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOfferIDs(e *jx.Encoder, ids []int64) {
	e.ArrStart()
	for _, id := range ids {
		e.Int64(id)
	}
	e.ArrEnd()
}

func encodeItem(e *jx.Encoder, it order.Item) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Int64(it.ProductID)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("originalUnitPrice")
	money(e, it.OriginalUnitPrice)
	e.FieldStart("unitPrice")
	money(e, it.UnitPrice)
	e.FieldStart("subtotal")
	money(e, it.Subtotal)
	if it.OfferID != nil {
		e.FieldStart("offerId")
		e.Int64(*it.OfferID)
	}
	e.ObjEnd()
}

// encodeOrder writes the order representation. estimatedMinutes is omitted
// when zero.
func encodeOrder(e *jx.Encoder, o *order.Order, estimatedMinutes int) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Int64(o.CustomerID)
	e.FieldStart("restaurantId")
	e.Int64(o.RestaurantID)
	e.FieldStart("deliveryAddressId")
	e.Int64(o.DeliveryAddressID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	if o.DeliveryPersonID != nil {
		e.FieldStart("deliveryPersonId")
		e.Int64(*o.DeliveryPersonID)
	}
	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("deliveryFee")
	money(e, o.DeliveryFee)
	e.FieldStart("total")
	money(e, o.Total)
	if o.Notes != "" {
		e.FieldStart("notes")
		e.Str(o.Notes)
	}

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		encodeItem(e, it)
	}
	e.ArrEnd()

	if p := o.Payment; p != nil {
		e.FieldStart("payment")
		e.ObjStart()
		e.FieldStart("method")
		e.Str(string(p.Method))
		e.FieldStart("status")
		e.Str(string(p.Status))
		e.FieldStart("transactionRef")
		e.Str(p.TransactionRef)
		e.FieldStart("amount")
		money(e, p.Amount)
		e.ObjEnd()
	}

	e.FieldStart("appliedOffers")
	encodeOfferIDs(e, o.AppliedOffers)
	if estimatedMinutes > 0 {
		e.FieldStart("estimatedDeliveryMinutes")
		e.Int(estimatedMinutes)
	}
	e.FieldStart("createdAt")
	timestamp(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	timestamp(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeCalculation(e *jx.Encoder, c offer.Calculation) {
	e.ObjStart()
	e.FieldStart("lineIndex")
	e.Int(c.LineIndex)
	e.FieldStart("offerId")
	e.Int64(c.OfferID)
	e.FieldStart("productId")
	e.Int64(c.ProductID)
	e.FieldStart("originalPrice")
	money(e, c.OriginalPrice)
	e.FieldStart("calculatedDiscount")
	money(e, c.CalculatedDiscount)
	e.FieldStart("finalPrice")
	money(e, c.FinalPrice)
	e.FieldStart("applied")
	e.Bool(c.Applied)
	if c.Reason != offer.ReasonNone {
		e.FieldStart("reason")
		e.Str(string(c.Reason))
	}
	if c.Message != "" {
		e.FieldStart("message")
		e.Str(c.Message)
	}
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.ObjStart()
	e.FieldStart("restaurantId")
	e.Int64(q.Restaurant.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range q.Totals.Items {
		encodeItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	money(e, q.Totals.Subtotal)
	e.FieldStart("deliveryFee")
	money(e, q.Totals.DeliveryFee)
	e.FieldStart("total")
	money(e, q.Totals.Total)
	e.FieldStart("appliedOffers")
	encodeOfferIDs(e, q.AppliedOffers)
	e.FieldStart("calculations")
	e.ArrStart()
	for _, c := range q.Calculations {
		encodeCalculation(e, c)
	}
	e.ArrEnd()
	if q.Restaurant.EstimatedDeliveryMinutes > 0 {
		e.FieldStart("estimatedDeliveryMinutes")
		e.Int(q.Restaurant.EstimatedDeliveryMinutes)
	}
	e.ObjEnd()
}

func encodeHistory(e *jx.Encoder, entries []order.HistoryEntry) {
	e.ObjStart()
	e.FieldStart("history")
	e.ArrStart()
	for _, h := range entries {
		e.ObjStart()
		if h.From != "" {
			e.FieldStart("from")
			e.Str(string(h.From))
		}
		e.FieldStart("to")
		e.Str(string(h.To))
		e.FieldStart("actorId")
		e.Int64(h.ActorID)
		e.FieldStart("actorRole")
		e.Str(string(h.ActorRole))
		e.FieldStart("at")
		timestamp(e, h.At)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeError(e *jx.Encoder, code int, message string) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
}

// writeJSON encodes a response with a pooled encoder.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeStatus(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		encodeError(e, code, message)
	})
}
