package api

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
)

// bindDenyUnknown decodes the request body into dst, rejecting any field
// the target struct doesn't declare (§9 Design Notes: deny-unknown-fields
// on partial/update payloads).
func bindDenyUnknown(c *gin.Context, dst interface{}) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, err
	}
	return n, nil
}
