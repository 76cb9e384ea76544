package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign(body, testWebhookSecret)

	assert.True(t, ValidSignature(body, sig, testWebhookSecret))
	assert.True(t, ValidSignature(body, "  "+sig+" ", testWebhookSecret))
	assert.False(t, ValidSignature([]byte(`{"event":"payment.captured" }`), sig, testWebhookSecret))
	assert.False(t, ValidSignature(body, sig, "other"))
	assert.False(t, ValidSignature(body, "", testWebhookSecret))
	assert.False(t, ValidSignature(body, Sign(body, ""), ""))
}

func TestParseWebhook(t *testing.T) {
	t.Run("empty notes array", func(t *testing.T) {
		p, err := ParseWebhook([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","notes":[]}}}}`))
		require.NoError(t, err)
		assert.Equal(t, "pay_1", p.PaymentID())
		assert.Empty(t, p.Payment().Notes)
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := ParseWebhook([]byte(`{"payload":{}}`))
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseWebhook([]byte(`event=payment.captured`))
		assert.Error(t, err)
	})
}

func TestExtractRegistrationID(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "payment notes",
			body: `{"event":"payment.captured","payload":{"payment":{"entity":{"notes":{"registration_id":"reg-notes"}}}}}`,
			want: "reg-notes",
		},
		{
			name: "link notes",
			body: `{"event":"payment.captured","payload":{"payment_link":{"entity":{"notes":{"registration_id":"reg-link"}}}}}`,
			want: "reg-link",
		},
		{
			name: "custom field label",
			body: `{"event":"payment.captured","payload":{"payment":{"entity":{"notes":{"Registration ID":"reg-custom"}}}}}`,
			want: "reg-custom",
		},
		{
			name: "link reference id",
			body: `{"event":"payment.captured","payload":{"payment_link":{"entity":{"reference_id":"reg-ref","notes":[]}}}}`,
			want: "reg-ref",
		},
		{
			name: "description token",
			body: `{"event":"payment.captured","payload":{"payment":{"entity":{"description":"INFEST registration_id=reg_desc-1 thanks"}}}}`,
			want: "reg_desc-1",
		},
		{
			name: "callback url",
			body: `{"event":"payment.captured","payload":{"payment_link":{"entity":{"callback_url":"https://infest.example/pay/done?registration_id=reg-url"}}}}`,
			want: "reg-url",
		},
		{
			name: "notes win over description",
			body: `{"event":"payment.captured","payload":{"payment":{"entity":{"description":"registration_id=reg-desc","notes":{"registration_id":"reg-first"}}}}}`,
			want: "reg-first",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParseWebhook([]byte(tc.body))
			require.NoError(t, err)
			got, ok := ExtractRegistrationID(p)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("nothing to find", func(t *testing.T) {
		p, err := ParseWebhook([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","description":"ticket"}}}}`))
		require.NoError(t, err)
		_, ok := ExtractRegistrationID(p)
		assert.False(t, ok)
	})
}

func TestWithRegistrationID(t *testing.T) {
	got, err := WithRegistrationID("https://pages.razorpay.com/infest?src=mail", "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://pages.razorpay.com/infest?registration_id=abc&src=mail", got)
}
