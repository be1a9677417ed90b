package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHost(t *testing.T) {
	cases := map[string]string{
		"":                      "http://127.0.0.1:11435",
		"1.2.3.4":               "http://1.2.3.4:11435",
		"1.2.3.4:5678":          "http://1.2.3.4:5678",
		"http://1.2.3.4":        "http://1.2.3.4:80",
		"https://1.2.3.4":       "https://1.2.3.4:443",
		"worker1.internal:9999": "http://worker1.internal:9999",
		"1.2.3.4:99999":         "http://1.2.3.4:11435",
	}

	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("DRIFT_HOST", value)
			assert.Equal(t, want, Host().String())
		})
	}
}

func TestWorkerName(t *testing.T) {
	t.Setenv("DRIFT_WORKER", "worker3")
	assert.Equal(t, "worker3", WorkerName())

	t.Setenv("DRIFT_WORKER", "")
	assert.NotEmpty(t, WorkerName())
}
