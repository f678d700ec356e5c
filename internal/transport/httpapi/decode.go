package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	maxBodyBytes     = 1 << 20
	maxMultipartMem  = 1 << 20
	fieldUser        = "user"
	fieldItems       = "items"
	fieldUUID        = "uuid"
	contentTypeJSON  = "application/json"
	contentTypeMulti = "multipart/form-data"
)

var errBodyTooLarge = errors.New("request body too large")

// orderPayload — поля тела запроса до доменной валидации.
type orderPayload struct {
	User     string
	UserSet  bool
	UUIDSet  bool
	Items    []domain.LineRequest
	ItemsSet bool
	itemsErr error
}

// decodeOrderPayload читает тело как form (urlencoded/multipart) или JSON.
// В форме items — строка с JSON-списком пар; в JSON допускается и строка, и сам список.
func decodeOrderPayload(r *http.Request) (orderPayload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == contentTypeJSON {
		return decodeJSONPayload(r)
	}
	return decodeFormPayload(r, mediaType)
}

func decodeFormPayload(r *http.Request, mediaType string) (orderPayload, error) {
	var err error
	if mediaType == contentTypeMulti {
		err = r.ParseMultipartForm(maxMultipartMem)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		if isTooLarge(err) {
			return orderPayload{}, errBodyTooLarge
		}
		return orderPayload{}, fmt.Errorf("%w: cannot parse form: %v", domain.ErrValidation, err)
	}

	form := r.PostForm
	if r.MultipartForm != nil {
		form = r.MultipartForm.Value
	}

	var p orderPayload
	if values, ok := form[fieldUser]; ok {
		p.UserSet = true
		if len(values) > 0 {
			p.User = strings.TrimSpace(values[0])
		}
	}
	_, p.UUIDSet = form[fieldUUID]
	if values, ok := form[fieldItems]; ok {
		p.ItemsSet = true
		raw := ""
		if len(values) > 0 {
			raw = values[0]
		}
		p.Items, p.itemsErr = parseItems([]byte(raw))
	}
	return p, nil
}

func decodeJSONPayload(r *http.Request) (orderPayload, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			return orderPayload{}, errBodyTooLarge
		}
		return orderPayload{}, fmt.Errorf("read body: %w", err)
	}

	var fields map[string]json.RawMessage
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return orderPayload{}, fmt.Errorf("%w: body must be a JSON object", domain.ErrValidation)
		}
	}

	var p orderPayload
	if raw, ok := fields[fieldUser]; ok {
		p.UserSet = true
		if err := json.Unmarshal(raw, &p.User); err != nil {
			return orderPayload{}, fmt.Errorf("%w: user must be a string", domain.ErrValidation)
		}
		p.User = strings.TrimSpace(p.User)
	}
	_, p.UUIDSet = fields[fieldUUID]
	if raw, ok := fields[fieldItems]; ok {
		p.ItemsSet = true
		// Строка внутри JSON — тот же формат, что и в форме.
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err == nil {
			raw = json.RawMessage(encoded)
		}
		p.Items, p.itemsErr = parseItems(raw)
	}
	return p, nil
}

// parseItems разбирает JSON-список пар [item_uuid, quantity].
// Пустой список возвращается как непустой срез нулевой длины.
func parseItems(raw []byte) ([]domain.LineRequest, error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil || pairs == nil {
		return nil, domain.ErrItemsMalformed
	}

	lines := make([]domain.LineRequest, 0, len(pairs))
	for idx, rawPair := range pairs {
		var pair []json.RawMessage
		if err := json.Unmarshal(rawPair, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("items[%d]: %w", idx, domain.ErrItemsMalformed)
		}

		var line domain.LineRequest
		if err := json.Unmarshal(pair[0], &line.ItemUUID); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, domain.ErrItemsMalformed)
		}

		var qty json.Number
		if err := json.Unmarshal(pair[1], &qty); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, domain.ErrQuantityInvalid)
		}
		n, err := qty.Int64()
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, domain.ErrQuantityInvalid)
		}
		line.Quantity = n
		lines = append(lines, line)
	}
	return lines, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
