package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/VaXeS13/MP-sub002/internal/command"
	"github.com/VaXeS13/MP-sub002/internal/device"
	"github.com/VaXeS13/MP-sub002/internal/ledger"
	"github.com/VaXeS13/MP-sub002/internal/realtime"
)

var errUnsupportedCommand = errors.New("unsupported command type")

// dispatch runs one dequeued command to a terminal state. Device errors are
// caught here and become Failed/TimedOut statuses; nothing escapes to crash
// the worker loop.
func (s *Service) dispatch(parent context.Context, cmd *command.Info) {
	ctx, cancel := context.WithTimeout(parent, cmd.Timeout)
	defer cancel()
	s.queue.RegisterCancel(cmd.ID, cancel)

	result, err := s.execute(ctx, cmd)

	var status command.Status
	var response []byte
	switch {
	case err == nil:
		status = command.StatusCompleted
		if result != nil {
			response, _ = json.Marshal(result)
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = command.StatusTimedOut
		response = errorResponse(fmt.Sprintf("command exceeded its %s budget", cmd.Timeout))
	case errors.Is(err, context.Canceled):
		status = command.StatusCancelled
		response = errorResponse("command cancelled")
	default:
		status = command.StatusFailed
		response = errorResponse(err.Error())
	}

	if uerr := s.queue.UpdateStatus(cmd.ID, status, response); uerr != nil {
		s.log.Warn().Err(uerr).Str("id", cmd.ID).Msg("Status update rejected")
		return
	}

	resp := realtime.CommandResponse{
		CommandID: cmd.ID,
		Status:    string(status),
		Response:  response,
		At:        time.Now(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	if serr := s.link.SendCommandResponse(resp); serr != nil {
		s.log.Error().Err(serr).Str("id", cmd.ID).Msg("Command response delivery failed")
	}
}

func errorResponse(msg string) []byte {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return raw
}

func (s *Service) execute(ctx context.Context, cmd *command.Info) (interface{}, error) {
	switch cmd.Type {
	case CmdAuthorizePayment, CmdCapturePayment, CmdRefundPayment, CmdCancelPayment:
		return s.executeTerminal(ctx, cmd)
	case CmdPrintReceipt, CmdPrintNonFiscal, CmdCancelReceipt, CmdDailyReport:
		return s.executePrinter(ctx, cmd)
	case CmdDeviceStatusCheck:
		return s.executeStatusCheck(ctx, cmd)
	case CmdGenerateZReport, CmdGetCRKStatus, CmdExportLedger:
		return s.executeCRK(ctx, cmd)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedCommand, cmd.Type)
	}
}

func (s *Service) primaryTerminal() (string, device.Terminal, error) {
	info, ok := s.registry.Primary(device.TypeTerminal)
	if !ok {
		return "", nil, errors.New("no primary payment terminal configured")
	}
	drv, ok := s.registry.Terminal(info.ID)
	if !ok {
		return "", nil, &device.InitError{DeviceID: info.ID, Cause: errors.New("no driver bound")}
	}
	return info.ID, drv, nil
}

func (s *Service) primaryPrinter() (*device.Info, device.FiscalPrinter, error) {
	info, ok := s.registry.Primary(device.TypeFiscalPrinter)
	if !ok {
		return nil, nil, errors.New("no primary fiscal printer configured")
	}
	drv, ok := s.registry.Printer(info.ID)
	if !ok {
		return nil, nil, &device.InitError{DeviceID: info.ID, Cause: errors.New("no driver bound")}
	}
	return info, drv, nil
}

// fiscalRegister resolves a fiscal device's CRK register and refuses fiscal
// work while the hash chain does not verify.
func (s *Service) fiscalRegister(info *device.Info) (*ledger.Register, error) {
	reg, err := s.crk.Initialize(info.ID, info.Model)
	if err != nil {
		return nil, fmt.Errorf("ledger init: %w", err)
	}
	ok, err := s.crk.VerifyIntegrity(reg.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.ErrIntegrity
	}
	return reg, nil
}

func (s *Service) executeTerminal(ctx context.Context, cmd *command.Info) (interface{}, error) {
	deviceID, term, err := s.primaryTerminal()
	if err != nil {
		return nil, err
	}
	s.registry.ReportStatus(deviceID, device.StatusBusy, "executing "+cmd.Type)
	defer s.registry.ReportStatus(deviceID, device.StatusReady, "")

	switch cmd.Type {
	case CmdAuthorizePayment:
		var p authorizePaymentPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		return term.AuthorizePayment(ctx, p.Amount, p.Currency, p.Description)
	case CmdCapturePayment:
		var p capturePaymentPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		return nil, term.CapturePayment(ctx, p.TransactionID, p.Amount)
	case CmdRefundPayment:
		var p refundPaymentPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		// A refund reverses a fiscalized sale: the ledger must be able
		// to take the reversal before any money moves.
		info, _, err := s.primaryPrinter()
		if err != nil {
			return nil, err
		}
		reg, err := s.fiscalRegister(info)
		if err != nil {
			return nil, err
		}
		if err := term.RefundPayment(ctx, p.TransactionID, p.Amount, p.Reason); err != nil {
			return nil, err
		}
		method := p.PaymentMethod
		if method == "" {
			method = "Card"
		}
		tx, err := s.crk.RecordTransaction(reg.ID, p.ReceiptNumber, ledger.TxRefund, p.Amount, p.TaxAmount, p.TaxRate, method, p.Reason)
		if err != nil {
			// The money already moved; a ledger failure here is
			// compliance-critical and must fail the command.
			return nil, fmt.Errorf("refund issued but ledger append failed: %w", err)
		}
		return tx, nil
	case CmdCancelPayment:
		var p cancelPaymentPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		return nil, term.CancelPayment(ctx, p.TransactionID)
	}
	return nil, errUnsupportedCommand
}

func (s *Service) executePrinter(ctx context.Context, cmd *command.Info) (interface{}, error) {
	info, printer, err := s.primaryPrinter()
	if err != nil {
		return nil, err
	}
	s.registry.ReportStatus(info.ID, device.StatusBusy, "executing "+cmd.Type)
	defer s.registry.ReportStatus(info.ID, device.StatusReady, "")

	switch cmd.Type {
	case CmdPrintReceipt:
		var p printReceiptPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		reg, err := s.fiscalRegister(info)
		if err != nil {
			return nil, err
		}

		receipt, err := printer.PrintReceipt(ctx, p.Items, p.Total, p.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if _, err := s.crk.RecordTransaction(reg.ID, receipt.ReceiptNumber, ledger.TxSale, p.Total, receipt.TotalTax, p.TaxRate, p.PaymentMethod, ""); err != nil {
			// The paper receipt exists; a ledger failure here is
			// compliance-critical and must fail the command.
			return nil, fmt.Errorf("receipt printed but ledger append failed: %w", err)
		}
		return receipt, nil
	case CmdPrintNonFiscal:
		var p printNonFiscalPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		return nil, printer.PrintNonFiscalDocument(ctx, p.Lines)
	case CmdCancelReceipt:
		var p cancelReceiptPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		reg, err := s.fiscalRegister(info)
		if err != nil {
			return nil, err
		}
		cancelled, err := printer.CancelLastReceipt(ctx, p.Reason)
		if err != nil {
			return nil, err
		}
		// The cancellation is a reversal, not an erasure: the register
		// stays append-only and takes a refund for the cancelled total.
		if _, err := s.crk.RecordTransaction(reg.ID, cancelled.ReceiptNumber, ledger.TxRefund, cancelled.Total, cancelled.TotalTax, p.TaxRate, p.PaymentMethod, p.Reason); err != nil {
			return nil, fmt.Errorf("receipt cancelled but ledger append failed: %w", err)
		}
		return cancelled, nil
	case CmdDailyReport:
		var p dateOnlyPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		date, err := parseDate(p.Date)
		if err != nil {
			return nil, err
		}
		return printer.GetDailyReport(ctx, date)
	}
	return nil, errUnsupportedCommand
}

func (s *Service) executeStatusCheck(ctx context.Context, cmd *command.Info) (interface{}, error) {
	var p deviceStatusCheckPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return nil, fmt.Errorf("bad payload: %w", err)
	}
	switch p.DeviceType {
	case device.TypeTerminal:
		_, term, err := s.primaryTerminal()
		if err != nil {
			return nil, err
		}
		return term.CheckStatus(ctx)
	case device.TypeFiscalPrinter:
		_, printer, err := s.primaryPrinter()
		if err != nil {
			return nil, err
		}
		return printer.CheckStatus(ctx)
	default:
		return nil, fmt.Errorf("unknown device type %q", p.DeviceType)
	}
}

func (s *Service) executeCRK(_ context.Context, cmd *command.Info) (interface{}, error) {
	info, _, err := s.primaryPrinter()
	if err != nil {
		return nil, err
	}
	reg, err := s.crk.Initialize(info.ID, info.Model)
	if err != nil {
		return nil, err
	}

	switch cmd.Type {
	case CmdGenerateZReport:
		var p dateOnlyPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		date, err := parseDate(p.Date)
		if err != nil {
			return nil, err
		}
		return s.crk.GenerateZReport(reg.ID, date)
	case CmdGetCRKStatus:
		return s.crk.Status(reg.ID)
	case CmdExportLedger:
		var p exportLedgerPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
		from, err := parseDate(p.From)
		if err != nil {
			return nil, err
		}
		to, err := parseDate(p.To)
		if err != nil {
			return nil, err
		}
		return s.crk.Export(reg.ID, from, to.Add(24*time.Hour))
	}
	return nil, errUnsupportedCommand
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}
