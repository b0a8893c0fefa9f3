package client

import (
	"context"
	"testing"
	"time"
)

// BenchmarkClient_BuildRequest benchmarks HTTP request construction.
func BenchmarkClient_BuildRequest(b *testing.B) {
	client, _ := NewWeatherAPIClient("test-api-key-12345", DefaultAPIURL, 2*time.Second)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.buildRequest(ctx, "51.52,-0.11")
	}
}

// BenchmarkClient_DecodeSnapshot benchmarks lenient decoding of a full response.
func BenchmarkClient_DecodeSnapshot(b *testing.B) {
	body := []byte(londonResponse)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = decodeSnapshot(body)
	}
}
