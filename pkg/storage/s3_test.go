package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQRKey(t *testing.T) {
	assert.Equal(t, "qr/INF25-ABC-123.png", QRKey("inf25-abc-123"))
	assert.Equal(t, "qr/EVIL.png", QRKey("../../evil"))
}

func TestPublicObjectURL(t *testing.T) {
	aws := S3Config{Region: "ap-south-1", Bucket: "infest-tickets"}
	assert.Equal(t, "https://infest-tickets.s3.ap-south-1.amazonaws.com/qr/A.png", PublicObjectURL(aws, "qr/A.png"))

	minio := S3Config{Bucket: "tickets", Endpoint: "http://localhost:9000/"}
	assert.Equal(t, "http://localhost:9000/tickets/qr/A.png", PublicObjectURL(minio, "qr/A.png"))
}
