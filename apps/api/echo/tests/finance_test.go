package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core/finance"
	exportsvc "github.com/trezcool/bursar/services/export"
	testutil "github.com/trezcool/bursar/tests"
)

func Test_auth(t *testing.T) {
	srv, _ := setup(t)

	expired := NewClaims(conf, testutil.Admin)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := GenerateToken(conf, expired)
	require.NoError(t, err)

	foreign := NewClaims(conf, testutil.Admin)
	foreignToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, foreign).SignedString([]byte("not-our-secret"))
	require.NoError(t, err)

	anonymous := NewClaims(conf, finance.Caller{})
	anonymousToken, err := GenerateToken(conf, anonymous)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "home is public", path: "/", wantCode: http.StatusOK},
		{name: "Auth required", path: "/v1/fee-types", wantCode: http.StatusUnauthorized, wantErr: &errMissingToken},
		{
			name: "Garbage token", path: "/v1/fee-types", token: "garbage", wantCode: http.StatusUnauthorized,
			wantErr: &httpErr{Error: "invalid or expired jwt"},
		},
		{
			name: "Expired token", path: "/v1/fee-types", token: expiredToken, wantCode: http.StatusUnauthorized,
			wantErr: &httpErr{Error: "invalid or expired jwt"},
		},
		{
			name: "Foreign signature", path: "/v1/fee-types", token: foreignToken, wantCode: http.StatusUnauthorized,
			wantErr: &httpErr{Error: "invalid or expired jwt"},
		},
		{
			name: "No subject", path: "/v1/fee-types", token: anonymousToken, wantCode: http.StatusUnauthorized,
			wantErr: &httpErr{Error: "user not authenticated"},
		},
		{name: "Admin", path: "/v1/fee-types", token: getToken(t, testutil.Admin), wantCode: http.StatusOK},
		{
			name: "Admin required", method: http.MethodPost, path: "/v1/fee-types", token: getToken(t, testutil.Guardian("g1", "s1")),
			body: finance.NewFeeType{Name: "Tuition", Category: "academic"}, wantCode: http.StatusForbidden, wantErr: &errForbidden,
		},
		{
			name: "Admin required for the ledger", path: "/v1/ledger", token: getToken(t, testutil.Guardian("g1", "s1")),
			wantCode: http.StatusForbidden, wantErr: &errForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run(t, srv, tt)
		})
	}
}

func TestClaims_Caller(t *testing.T) {
	guardian := testutil.Guardian("g1", "s1", "s2")
	assert.Equal(t, guardian, NewClaims(conf, guardian).Caller())

	// a guardian token without students sees nobody
	none := NewClaims(conf, testutil.Guardian("g2")).Caller()
	assert.NotNil(t, none.StudentIDs)
	assert.Empty(t, none.StudentIDs)

	admin := NewClaims(conf, testutil.Admin).Caller()
	assert.Nil(t, admin.StudentIDs)
	assert.True(t, admin.IsAdmin())
}

func Test_financeApi_collectionFlow(t *testing.T) {
	srv, _ := setup(t)
	adminToken := getToken(t, testutil.Admin)
	g1Token := getToken(t, testutil.Guardian("g1", "s1"))
	g2Token := getToken(t, testutil.Guardian("g2", "s2"))

	// catalog
	rec := run(t, srv, httpTest{
		method: http.MethodPost, path: "/v1/fee-types", token: adminToken,
		body: finance.NewFeeType{Name: "Tuition", Category: "Academic"}, wantCode: http.StatusCreated,
	})
	var ft finance.FeeType
	decode(t, rec, &ft)
	assert.Equal(t, "academic", ft.Category)

	rec = run(t, srv, httpTest{
		method: http.MethodPost, path: "/v1/fee-structures", token: adminToken,
		body: map[string]interface{}{
			"fee_type_id": ft.ID, "academic_year": "2023-2024", "amount": "5000", "frequency": "monthly",
		},
		wantCode: http.StatusCreated,
	})
	var fs finance.FeeStructure
	decode(t, rec, &fs)

	rec = run(t, srv, httpTest{
		method: http.MethodPost, path: "/v1/student-fees", token: adminToken,
		body: finance.InstantiateFee{
			StructureID: fs.ID,
			Student:     testutil.Student("s1", "5"),
			Period:      finance.Period{Label: "2024-03", Start: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)},
		},
		wantCode: http.StatusCreated,
	})
	var sf finance.StudentFee
	decode(t, rec, &sf)
	assert.Equal(t, finance.StatusOverdue, sf.Status)

	collect := func(amount string) map[string]interface{} {
		return map[string]interface{}{
			"lines": []map[string]string{{"student_fee_id": sf.ID, "amount": amount}},
			"mode":  "cash",
		}
	}

	tests := []httpTest{
		{
			name: "guardian reads own fees", path: "/v1/students/s1/fees", token: g1Token, wantCode: http.StatusOK,
		},
		{
			name: "guardian without fees", path: "/v1/students/s2/fees", token: g2Token, wantCode: http.StatusOK,
		},
		{
			name: "guardian cannot read fees of s1", path: "/v1/students/s1/fees", token: g2Token,
			wantCode: http.StatusForbidden, wantErr: &httpErr{Kind: string(finance.KindForbidden)},
		},
		{
			name: "guardians cannot collect", method: http.MethodPost, path: "/v1/collections", token: g1Token,
			body: collect("100"), wantCode: http.StatusForbidden, wantErr: &errForbidden,
		},
		{
			name: "exceeds due", method: http.MethodPost, path: "/v1/collections", token: adminToken,
			body: collect("5000.01"), wantCode: http.StatusConflict, wantErr: &httpErr{Kind: string(finance.KindExceedsDue)},
		},
		{
			name: "unknown field", method: http.MethodPost, path: "/v1/collections", token: adminToken,
			body: `{"lines": [], "mode": "cash", "discount": "100"}`, wantCode: http.StatusBadRequest, wantErr: &httpErr{},
		},
		{
			name: "empty body", method: http.MethodPost, path: "/v1/collections", token: adminToken,
			wantCode: http.StatusBadRequest, wantErr: &httpErr{Error: "request body is empty"},
		},
		{
			name: "unknown obligation", method: http.MethodPost, path: "/v1/student-fees/nope/discounts", token: adminToken,
			body:     finance.NewDiscount{Amount: testutil.Dec("10"), Reason: "merit"},
			wantCode: http.StatusNotFound, wantErr: &httpErr{Kind: string(finance.KindNotFound)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run(t, srv, tt)
		})
	}

	t.Run("field errors", func(t *testing.T) {
		rec := run(t, srv, httpTest{
			method: http.MethodPost, path: "/v1/fee-types", token: adminToken,
			body: finance.NewFeeType{Name: " ", Category: "academic"}, wantCode: http.StatusBadRequest,
		})
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, map[string]string{"name": "this field is required"}, fields)
	})

	t.Run("collect then read back", func(t *testing.T) {
		rec := run(t, srv, httpTest{
			method: http.MethodPost, path: "/v1/collections", token: adminToken, body: collect("3000"), wantCode: http.StatusCreated,
		})
		var res finance.CollectionResult
		decode(t, rec, &res)
		assert.Equal(t, "RCP-2024-000001", res.Receipt.Number)
		require.Len(t, res.Fees, 1)
		assert.Equal(t, finance.StatusPartial, res.Fees[0].Status)

		run(t, srv, httpTest{path: "/v1/receipts/RCP-2024-000001", token: g1Token, wantCode: http.StatusOK})
		run(t, srv, httpTest{
			path: "/v1/receipts/RCP-2024-000001", token: g2Token,
			wantCode: http.StatusForbidden, wantErr: &httpErr{Kind: string(finance.KindForbidden)},
		})
		run(t, srv, httpTest{
			path: "/v1/receipts/RCP-2024-999999", token: adminToken,
			wantCode: http.StatusNotFound, wantErr: &httpErr{Kind: string(finance.KindNotFound)},
		})

		rec = run(t, srv, httpTest{path: "/v1/outstanding", token: g1Token, wantCode: http.StatusOK})
		var report finance.OutstandingReport
		decode(t, rec, &report)
		require.Len(t, report.Dues, 1)
		assert.True(t, testutil.Dec("2000").Equal(report.TotalDue), report.TotalDue.String())

		rec = run(t, srv, httpTest{path: "/v1/outstanding", token: g2Token, wantCode: http.StatusOK})
		decode(t, rec, &report)
		assert.Empty(t, report.Dues)
	})

	t.Run("ledger", func(t *testing.T) {
		rec := run(t, srv, httpTest{path: "/v1/ledger/balance", token: adminToken, wantCode: http.StatusOK})
		assert.JSONEq(t, `{"balance": "4000.00"}`, rec.Body.String())

		rec = run(t, srv, httpTest{path: "/v1/ledger?type=credit&page_size=5", token: adminToken, wantCode: http.StatusOK})
		var page finance.LedgerPage
		decode(t, rec, &page)
		require.Len(t, page.Entries, 1)
		assert.Equal(t, "RCP-2024-000001", page.Entries[0].ReferenceNumber)
		assert.Equal(t, 5, page.Pagination.PageSize)

		rec = run(t, srv, httpTest{path: "/v1/ledger?from=yesterday&page=-1", token: adminToken, wantCode: http.StatusBadRequest})
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, map[string]string{"from": "must be a date (YYYY-MM-DD)", "page": "must be a positive integer"}, fields)

		rec = run(t, srv, httpTest{path: "/v1/ledger/export", token: adminToken, wantCode: http.StatusOK})
		assert.Equal(t, exportsvc.XLSXType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "ledger.xlsx")
		assert.Equal(t, "PK", rec.Body.String()[:2]) // zip container
	})
}
