// Package transferv1connect wires the orgdir.transfer.v1.TransferService
// messages to connect handlers and clients.
package transferv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	v1 "github.com/wolfeidau/orgdir/api/transfer/v1"
)

const (
	// TransferServiceName is the fully-qualified name of the TransferService service.
	TransferServiceName = "orgdir.transfer.v1.TransferService"
)

// These constants are the fully-qualified names of the RPCs defined in this package. They're
// exposed at runtime as Spec.Procedure and as the final two segments of the HTTP route.
const (
	TransferServiceInitiateTransferProcedure     = "/orgdir.transfer.v1.TransferService/InitiateTransfer"
	TransferServiceListTransfersProcedure        = "/orgdir.transfer.v1.TransferService/ListTransfers"
	TransferServiceListPendingTransfersProcedure = "/orgdir.transfer.v1.TransferService/ListPendingTransfers"
	TransferServiceGetTransferProcedure          = "/orgdir.transfer.v1.TransferService/GetTransfer"
	TransferServiceAcceptTransferProcedure       = "/orgdir.transfer.v1.TransferService/AcceptTransfer"
	TransferServiceRejectTransferProcedure       = "/orgdir.transfer.v1.TransferService/RejectTransfer"
	TransferServiceCancelTransferProcedure       = "/orgdir.transfer.v1.TransferService/CancelTransfer"
	TransferServiceGetAuditLogProcedure          = "/orgdir.transfer.v1.TransferService/GetAuditLog"
	TransferServiceGetAccessProcedure            = "/orgdir.transfer.v1.TransferService/GetAccess"
	TransferServiceStreamEventsProcedure         = "/orgdir.transfer.v1.TransferService/StreamEvents"
)

// TransferServiceClient is a client for the orgdir.transfer.v1.TransferService service.
type TransferServiceClient interface {
	InitiateTransfer(context.Context, *connect.Request[v1.InitiateTransferRequest]) (*connect.Response[v1.TransferResponse], error)
	ListTransfers(context.Context, *connect.Request[v1.ListTransfersRequest]) (*connect.Response[v1.ListTransfersResponse], error)
	ListPendingTransfers(context.Context, *connect.Request[v1.ListPendingTransfersRequest]) (*connect.Response[v1.ListTransfersResponse], error)
	GetTransfer(context.Context, *connect.Request[v1.GetTransferRequest]) (*connect.Response[v1.TransferResponse], error)
	AcceptTransfer(context.Context, *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error)
	RejectTransfer(context.Context, *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error)
	CancelTransfer(context.Context, *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error)
	GetAuditLog(context.Context, *connect.Request[v1.GetAuditLogRequest]) (*connect.Response[v1.GetAuditLogResponse], error)
	GetAccess(context.Context, *connect.Request[v1.GetAccessRequest]) (*connect.Response[v1.GetAccessResponse], error)
	StreamEvents(context.Context, *connect.Request[v1.StreamEventsRequest]) (*connect.ServerStreamForClient[v1.TransferEvent], error)
}

// NewTransferServiceClient constructs a client for the orgdir.transfer.v1.TransferService
// service. Messages are encoded with Codec.
//
// The URL supplied here should be the base URL for the server (for example,
// http://api.acme.com or https://acme.com/grpc).
func NewTransferServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) TransferServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)

	return &transferServiceClient{
		initiateTransfer: connect.NewClient[v1.InitiateTransferRequest, v1.TransferResponse](
			httpClient,
			baseURL+TransferServiceInitiateTransferProcedure,
			opts...,
		),
		listTransfers: connect.NewClient[v1.ListTransfersRequest, v1.ListTransfersResponse](
			httpClient,
			baseURL+TransferServiceListTransfersProcedure,
			opts...,
		),
		listPendingTransfers: connect.NewClient[v1.ListPendingTransfersRequest, v1.ListTransfersResponse](
			httpClient,
			baseURL+TransferServiceListPendingTransfersProcedure,
			opts...,
		),
		getTransfer: connect.NewClient[v1.GetTransferRequest, v1.TransferResponse](
			httpClient,
			baseURL+TransferServiceGetTransferProcedure,
			opts...,
		),
		acceptTransfer: connect.NewClient[v1.TransitionRequest, v1.TransferResponse](
			httpClient,
			baseURL+TransferServiceAcceptTransferProcedure,
			opts...,
		),
		rejectTransfer: connect.NewClient[v1.TransitionRequest, v1.TransferResponse](
			httpClient,
			baseURL+TransferServiceRejectTransferProcedure,
			opts...,
		),
		cancelTransfer: connect.NewClient[v1.TransitionRequest, v1.TransferResponse](
			httpClient,
			baseURL+TransferServiceCancelTransferProcedure,
			opts...,
		),
		getAuditLog: connect.NewClient[v1.GetAuditLogRequest, v1.GetAuditLogResponse](
			httpClient,
			baseURL+TransferServiceGetAuditLogProcedure,
			opts...,
		),
		getAccess: connect.NewClient[v1.GetAccessRequest, v1.GetAccessResponse](
			httpClient,
			baseURL+TransferServiceGetAccessProcedure,
			opts...,
		),
		streamEvents: connect.NewClient[v1.StreamEventsRequest, v1.TransferEvent](
			httpClient,
			baseURL+TransferServiceStreamEventsProcedure,
			opts...,
		),
	}
}

// transferServiceClient implements TransferServiceClient.
type transferServiceClient struct {
	initiateTransfer     *connect.Client[v1.InitiateTransferRequest, v1.TransferResponse]
	listTransfers        *connect.Client[v1.ListTransfersRequest, v1.ListTransfersResponse]
	listPendingTransfers *connect.Client[v1.ListPendingTransfersRequest, v1.ListTransfersResponse]
	getTransfer          *connect.Client[v1.GetTransferRequest, v1.TransferResponse]
	acceptTransfer       *connect.Client[v1.TransitionRequest, v1.TransferResponse]
	rejectTransfer       *connect.Client[v1.TransitionRequest, v1.TransferResponse]
	cancelTransfer       *connect.Client[v1.TransitionRequest, v1.TransferResponse]
	getAuditLog          *connect.Client[v1.GetAuditLogRequest, v1.GetAuditLogResponse]
	getAccess            *connect.Client[v1.GetAccessRequest, v1.GetAccessResponse]
	streamEvents         *connect.Client[v1.StreamEventsRequest, v1.TransferEvent]
}

// InitiateTransfer calls orgdir.transfer.v1.TransferService.InitiateTransfer.
func (c *transferServiceClient) InitiateTransfer(ctx context.Context, req *connect.Request[v1.InitiateTransferRequest]) (*connect.Response[v1.TransferResponse], error) {
	return c.initiateTransfer.CallUnary(ctx, req)
}

// ListTransfers calls orgdir.transfer.v1.TransferService.ListTransfers.
func (c *transferServiceClient) ListTransfers(ctx context.Context, req *connect.Request[v1.ListTransfersRequest]) (*connect.Response[v1.ListTransfersResponse], error) {
	return c.listTransfers.CallUnary(ctx, req)
}

// ListPendingTransfers calls orgdir.transfer.v1.TransferService.ListPendingTransfers.
func (c *transferServiceClient) ListPendingTransfers(ctx context.Context, req *connect.Request[v1.ListPendingTransfersRequest]) (*connect.Response[v1.ListTransfersResponse], error) {
	return c.listPendingTransfers.CallUnary(ctx, req)
}

// GetTransfer calls orgdir.transfer.v1.TransferService.GetTransfer.
func (c *transferServiceClient) GetTransfer(ctx context.Context, req *connect.Request[v1.GetTransferRequest]) (*connect.Response[v1.TransferResponse], error) {
	return c.getTransfer.CallUnary(ctx, req)
}

// AcceptTransfer calls orgdir.transfer.v1.TransferService.AcceptTransfer.
func (c *transferServiceClient) AcceptTransfer(ctx context.Context, req *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error) {
	return c.acceptTransfer.CallUnary(ctx, req)
}

// RejectTransfer calls orgdir.transfer.v1.TransferService.RejectTransfer.
func (c *transferServiceClient) RejectTransfer(ctx context.Context, req *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error) {
	return c.rejectTransfer.CallUnary(ctx, req)
}

// CancelTransfer calls orgdir.transfer.v1.TransferService.CancelTransfer.
func (c *transferServiceClient) CancelTransfer(ctx context.Context, req *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error) {
	return c.cancelTransfer.CallUnary(ctx, req)
}

// GetAuditLog calls orgdir.transfer.v1.TransferService.GetAuditLog.
func (c *transferServiceClient) GetAuditLog(ctx context.Context, req *connect.Request[v1.GetAuditLogRequest]) (*connect.Response[v1.GetAuditLogResponse], error) {
	return c.getAuditLog.CallUnary(ctx, req)
}

// GetAccess calls orgdir.transfer.v1.TransferService.GetAccess.
func (c *transferServiceClient) GetAccess(ctx context.Context, req *connect.Request[v1.GetAccessRequest]) (*connect.Response[v1.GetAccessResponse], error) {
	return c.getAccess.CallUnary(ctx, req)
}

// StreamEvents calls orgdir.transfer.v1.TransferService.StreamEvents.
func (c *transferServiceClient) StreamEvents(ctx context.Context, req *connect.Request[v1.StreamEventsRequest]) (*connect.ServerStreamForClient[v1.TransferEvent], error) {
	return c.streamEvents.CallServerStream(ctx, req)
}

// TransferServiceHandler is an implementation of the orgdir.transfer.v1.TransferService service.
type TransferServiceHandler interface {
	InitiateTransfer(context.Context, *connect.Request[v1.InitiateTransferRequest]) (*connect.Response[v1.TransferResponse], error)
	ListTransfers(context.Context, *connect.Request[v1.ListTransfersRequest]) (*connect.Response[v1.ListTransfersResponse], error)
	ListPendingTransfers(context.Context, *connect.Request[v1.ListPendingTransfersRequest]) (*connect.Response[v1.ListTransfersResponse], error)
	GetTransfer(context.Context, *connect.Request[v1.GetTransferRequest]) (*connect.Response[v1.TransferResponse], error)
	AcceptTransfer(context.Context, *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error)
	RejectTransfer(context.Context, *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error)
	CancelTransfer(context.Context, *connect.Request[v1.TransitionRequest]) (*connect.Response[v1.TransferResponse], error)
	GetAuditLog(context.Context, *connect.Request[v1.GetAuditLogRequest]) (*connect.Response[v1.GetAuditLogResponse], error)
	GetAccess(context.Context, *connect.Request[v1.GetAccessRequest]) (*connect.Response[v1.GetAccessResponse], error)
	StreamEvents(context.Context, *connect.Request[v1.StreamEventsRequest], *connect.ServerStream[v1.TransferEvent]) error
}

// NewTransferServiceHandler builds an HTTP handler from the service implementation. It returns
// the path on which to mount the handler and the handler itself. Messages are encoded with Codec.
func NewTransferServiceHandler(svc TransferServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	initiateTransferHandler := connect.NewUnaryHandler(
		TransferServiceInitiateTransferProcedure,
		svc.InitiateTransfer,
		opts...,
	)
	listTransfersHandler := connect.NewUnaryHandler(
		TransferServiceListTransfersProcedure,
		svc.ListTransfers,
		opts...,
	)
	listPendingTransfersHandler := connect.NewUnaryHandler(
		TransferServiceListPendingTransfersProcedure,
		svc.ListPendingTransfers,
		opts...,
	)
	getTransferHandler := connect.NewUnaryHandler(
		TransferServiceGetTransferProcedure,
		svc.GetTransfer,
		opts...,
	)
	acceptTransferHandler := connect.NewUnaryHandler(
		TransferServiceAcceptTransferProcedure,
		svc.AcceptTransfer,
		opts...,
	)
	rejectTransferHandler := connect.NewUnaryHandler(
		TransferServiceRejectTransferProcedure,
		svc.RejectTransfer,
		opts...,
	)
	cancelTransferHandler := connect.NewUnaryHandler(
		TransferServiceCancelTransferProcedure,
		svc.CancelTransfer,
		opts...,
	)
	getAuditLogHandler := connect.NewUnaryHandler(
		TransferServiceGetAuditLogProcedure,
		svc.GetAuditLog,
		opts...,
	)
	getAccessHandler := connect.NewUnaryHandler(
		TransferServiceGetAccessProcedure,
		svc.GetAccess,
		opts...,
	)
	streamEventsHandler := connect.NewServerStreamHandler(
		TransferServiceStreamEventsProcedure,
		svc.StreamEvents,
		opts...,
	)

	return "/orgdir.transfer.v1.TransferService/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TransferServiceInitiateTransferProcedure:
			initiateTransferHandler.ServeHTTP(w, r)
		case TransferServiceListTransfersProcedure:
			listTransfersHandler.ServeHTTP(w, r)
		case TransferServiceListPendingTransfersProcedure:
			listPendingTransfersHandler.ServeHTTP(w, r)
		case TransferServiceGetTransferProcedure:
			getTransferHandler.ServeHTTP(w, r)
		case TransferServiceAcceptTransferProcedure:
			acceptTransferHandler.ServeHTTP(w, r)
		case TransferServiceRejectTransferProcedure:
			rejectTransferHandler.ServeHTTP(w, r)
		case TransferServiceCancelTransferProcedure:
			cancelTransferHandler.ServeHTTP(w, r)
		case TransferServiceGetAuditLogProcedure:
			getAuditLogHandler.ServeHTTP(w, r)
		case TransferServiceGetAccessProcedure:
			getAccessHandler.ServeHTTP(w, r)
		case TransferServiceStreamEventsProcedure:
			streamEventsHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
