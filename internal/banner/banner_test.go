package banner

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFprintAlignsLabels(t *testing.T) {
	var buf bytes.Buffer
	Fprint(&buf, "softphoned", []ConfigLine{
		{Label: "SIP", Value: "0.0.0.0:5060"},
		{Label: "API Address", Value: "127.0.0.1:8080"},
		{Label: "Redis", Value: ""},
	})

	out := buf.String()
	assert.Contains(t, out, "softphoned\n")
	assert.Contains(t, out, "  SIP         : 0.0.0.0:5060\n")
	assert.Contains(t, out, "  API Address : 127.0.0.1:8080\n")
	assert.Contains(t, out, "  Redis       : -\n")
	assert.Contains(t, out, "Ready.")
}
