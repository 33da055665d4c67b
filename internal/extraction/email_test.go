package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestExtractEmail(t *testing.T) {
	plain := crlf(`From: desk@bank.example
To: ops@bank.example
Subject: Termsheet TRADE-EM-5 for review
Content-Type: text/plain; charset=utf-8

Hi team,

Please find the termsheet details below:
1. Buyer: Acme Capital
- Seller: Beta   Securities
Trade ID: TRADE-EM-9
> Quoted: ignore me

Thanks,
Desk
`)

	html := crlf(`From: desk@bank.example
Subject: Termsheet TRADE-EM-5
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<html><body><p>Termsheet details</p><ul><li>Buyer: Omega Fund</li><li>Currency: EUR</li></ul><p>Best regards</p></body></html>
--b1--
`)

	fallback := crlf(`From: desk@bank.example
Subject: Termsheet update

Termsheet:
Buyer: X Co
`)

	tests := []struct {
		name        string
		content     []byte
		wantID      string
		wantSource  string
		wantRecord  map[string]string
		synthesized bool
	}{
		{
			name:       "plain text body field wins over subject",
			content:    plain,
			wantID:     "TRADE-EM-9",
			wantSource: "Termsheet_TRADE-EM-5_for_review",
			wantRecord: map[string]string{
				"Buyer":    "Acme Capital",
				"Seller":   "Beta Securities",
				"Trade ID": "TRADE-EM-9",
			},
		},
		{
			name:       "html alternative with subject trade id",
			content:    html,
			wantID:     "TRADE-EM-5",
			wantSource: "Termsheet_TRADE-EM-5",
			wantRecord: map[string]string{
				"Buyer":    "Omega Fund",
				"Currency": "EUR",
			},
		},
		{
			name:        "fallback identifier",
			content:     fallback,
			wantID:      "EMAIL-20250402093015",
			wantSource:  "Termsheet_update",
			wantRecord:  map[string]string{"Buyer": "X Co"},
			synthesized: true,
		},
	}

	e := newTestExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Extract(context.Background(), Document{Name: "msg.eml", Content: tt.content})
			require.NoError(t, err)

			assert.Equal(t, FormatEmail, res.Format)
			assert.Equal(t, tt.wantID, res.TradeID)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, tt.wantRecord, res.Record)
			assert.Equal(t, tt.synthesized, res.SynthesizedID)
		})
	}
}

func TestExtractEmailRejectsOtherSubjects(t *testing.T) {
	msg := crlf("From: a@b.example\nSubject: Lunch on Friday\n\nBuyer: nobody\n")

	_, err := newTestExtractor(t).Extract(context.Background(), Document{Name: "lunch.eml", Content: msg})
	assert.True(t, errors.Is(err, ErrNotTermsheet))
}

func TestRelevantBody(t *testing.T) {
	body := "Hello\nKey highlights:\nRate: 4.5%\n> old\nRegards\n-- \nJane"
	assert.Equal(t, ":\nRate: 4.5%", relevantBody(body))
}
