package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coaching/internal/auth"
	"coaching/internal/ledger"
)

type paymentRequest struct {
	StudentID      string `json:"studentId"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// RecordPayment is the single payment endpoint. Students pay their own fees
// online and cannot pay more than is due; admins record manual payments for
// any student without a cap.
func (h *Handler) RecordPayment(c *gin.Context) {
	var body paymentRequest
	if !h.bind(c, &body) {
		return
	}
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	ctx := c.Request.Context()
	cl := claims(c)
	req := ledger.PaymentRequest{
		StudentID:      body.StudentID,
		Amount:         body.Amount,
		Method:         ledger.MethodManual,
		IdempotencyKey: body.IdempotencyKey,
	}

	if cl.Role == auth.RoleStudent {
		if req.StudentID == "" {
			req.StudentID = cl.Subject
		}
		if req.StudentID != cl.Subject {
			c.JSON(http.StatusForbidden, gin.H{"error": "students can only pay their own fees"})
			return
		}
		req.Method = ledger.MethodOnline
		if err := ledger.ValidateAmount(req.Amount); err != nil {
			h.fail(c, err)
			return
		}
		// a retried request is answered from the ledger, not re-checked
		// against the now smaller due
		_, seen, err := h.ledger.FindPayment(ctx, req.IdempotencyKey)
		if err != nil {
			h.fail(c, err)
			return
		}
		if !seen {
			stmt, err := h.ledger.StudentFees(ctx, req.StudentID)
			if err != nil {
				h.fail(c, err)
				return
			}
			if err := ledger.ValidateAgainstDue(req.Amount, stmt.Fees); err != nil {
				h.fail(c, err)
				return
			}
		}
	}

	rec, err := h.ledger.RecordPayment(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if rec.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, rec)
}

// StudentFees returns a student's fee statement.
func (h *Handler) StudentFees(c *gin.Context) {
	h.feeStatement(c, c.Param("id"))
}

// MyFees returns the caller's fee statement.
func (h *Handler) MyFees(c *gin.Context) {
	h.feeStatement(c, claims(c).Subject)
}

func (h *Handler) feeStatement(c *gin.Context, studentID string) {
	stmt, err := h.ledger.StudentFees(c.Request.Context(), studentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stmt)
}

// MyPayments returns the caller's payment history.
func (h *Handler) MyPayments(c *gin.Context) {
	stmt, err := h.ledger.StudentFees(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": stmt.Payments})
}

// PaySalary pays the teacher for the current month.
func (h *Handler) PaySalary(c *gin.Context) {
	sp, already, err := h.ledger.PaySalary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if already {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"payment": sp, "alreadyPaid": already})
}

// SalaryStatus returns the teacher's salary status.
func (h *Handler) SalaryStatus(c *gin.Context) {
	st, err := h.ledger.SalaryStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
