package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/request"
)

// decode applies the final status and body checks and unmarshals the payload
// into out. A *[]byte out receives the raw payload.
func decode(resp *httputil.Response, d request.Descriptor, out any) error {
	if resp == nil {
		return apperrors.InvalidResponse("no response")
	}
	if !resp.OK() {
		return apperrors.HTTPError(resp.StatusCode, resp.Body)
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) > 0 && body[0] == '{' {
		if flag := gjson.GetBytes(body, "success"); flag.Type == gjson.False {
			return apperrors.ServerError(resp.StatusCode, resp.Body)
		}
	}
	if out == nil {
		return nil
	}

	if path := d.Envelope(); path != "" && len(body) > 0 {
		if !gjson.ValidBytes(body) {
			return apperrors.Decoding(errInvalidJSON)
		}
		r := gjson.GetBytes(body, path)
		if !r.Exists() {
			return apperrors.NoData()
		}
		body = []byte(r.Raw)
	}
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return apperrors.NoData()
	}

	if raw, ok := out.(*[]byte); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Decoding(err)
	}
	return nil
}

var errInvalidJSON = errors.New("response body is not valid JSON")
