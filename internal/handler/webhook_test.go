package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"investsystem/internal/config"
	"investsystem/internal/model"
	"investsystem/pkg/signature"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret-hash"

func newTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Project{},
		&model.PaymentTransaction{},
		&model.Investment{},
		&model.OutboxMessage{},
	))

	cfg := &config.Config{
		Flutterwave: config.FlutterwaveConfig{SecretHash: testSecret},
		Business: config.BusinessConfig{
			RegistrationFee:    20000,
			ReferralBonusRate:  0.1,
			StoreTimeoutSecond: 5,
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				PaymentReconciled: "payment_reconciled",
				DividendPaid:      "dividend_paid",
			},
		},
	}

	return SetupRouter(db, nil, cfg), db
}

func postWebhook(t *testing.T, router http.Handler, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/flutterwave", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("verif-hash", sig)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhook_EndToEnd(t *testing.T) {
	router, db := newTestRouter(t)

	require.NoError(t, db.Create(&model.User{UID: "user-1", Email: "u@example.com"}).Error)

	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"id": 42,
			"tx_ref": "FLW-E2E-001",
			"amount": 20000,
			"status": "successful",
			"meta": {"user_uid": "user-1", "payment_type": "reg_fee"}
		}
	}`)

	w := postWebhook(t, router, body, signature.Sign(testSecret, body))
	require.Equal(t, http.StatusOK, w.Code)

	var user model.User
	require.NoError(t, db.Where("uid = ?", "user-1").First(&user).Error)
	require.True(t, user.IsActive)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	router, db := newTestRouter(t)

	require.NoError(t, db.Create(&model.User{UID: "user-1", Email: "u@example.com"}).Error)

	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"tx_ref": "FLW-E2E-002",
			"amount": 20000,
			"status": "successful",
			"meta": {"user_uid": "user-1", "payment_type": "reg_fee"}
		}
	}`)

	// 无签名
	w := postWebhook(t, router, body, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// 错误签名
	w = postWebhook(t, router, body, signature.Sign("wrong-secret", body))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// 用户未被激活，无流水
	var user model.User
	require.NoError(t, db.Where("uid = ?", "user-1").First(&user).Error)
	require.False(t, user.IsActive)

	var n int64
	require.NoError(t, db.Model(&model.PaymentTransaction{}).Count(&n).Error)
	require.Equal(t, int64(0), n)
}

func TestWebhook_IgnoredEvent(t *testing.T) {
	router, _ := newTestRouter(t)

	body := []byte(`{
		"event": "charge.completed",
		"data": {"tx_ref": "FLW-E2E-003", "amount": 100, "status": "failed",
			"meta": {"user_uid": "user-1", "payment_type": "reg_fee"}}
	}`)

	w := postWebhook(t, router, body, signature.Sign(testSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "event ignored")
}

// 场景E：完全相同的回调投递两次，两次都回成功，第二次零变更
func TestWebhook_DuplicateDelivery(t *testing.T) {
	router, db := newTestRouter(t)

	require.NoError(t, db.Create(&model.User{UID: "user-1", Email: "u@example.com"}).Error)

	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"tx_ref": "FLW-E2E-004",
			"amount": 20000,
			"status": "successful",
			"meta": {"user_uid": "user-1", "payment_type": "reg_fee"}
		}
	}`)
	sig := signature.Sign(testSecret, body)

	w := postWebhook(t, router, body, sig)
	require.Equal(t, http.StatusOK, w.Code)

	w = postWebhook(t, router, body, sig)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "already processed")

	var n int64
	require.NoError(t, db.Model(&model.PaymentTransaction{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}

// 业务性拒绝也要回 2xx，否则渠道会重试风暴
func TestWebhook_DomainRejectionReturns200(t *testing.T) {
	router, db := newTestRouter(t)

	require.NoError(t, db.Create(&model.User{UID: "user-1", Email: "u@example.com"}).Error)

	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"tx_ref": "FLW-E2E-005",
			"amount": 40000,
			"status": "successful",
			"meta": {"user_uid": "user-1", "payment_type": "investment", "project_id": "ghost", "slots": 2}
		}
	}`)

	w := postWebhook(t, router, body, signature.Sign(testSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "event rejected")
}
