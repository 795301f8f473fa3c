package dto

// ImportRangeRequest selects the external invoices to import by number
type ImportRangeRequest struct {
	Start *int `json:"start" binding:"required,gte=0"`
	End   *int `json:"end" binding:"required,gte=0"`
}

// InvoiceURI carries the external invoice id path parameter
type InvoiceURI struct {
	ID string `uri:"id" binding:"required,max=64"`
}

// ChangeRequestURI carries the change request id path parameter
type ChangeRequestURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// ChangeRequestDecisionRequest records who approves or denies a change request
type ChangeRequestDecisionRequest struct {
	Approver string `json:"approver" binding:"required,max=200"`
}
