package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/import-export/internal/core/domain"
	"github.com/rl1809/import-export/internal/core/service"
)

// TransferServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct so clients need no generated stubs.
const TransferServiceName = "importexport.v1.TransferService"

const (
	methodTransfer          = "/" + TransferServiceName + "/Transfer"
	methodListUserTransfers = "/" + TransferServiceName + "/ListUserTransfers"
	methodRemoveTransfer    = "/" + TransferServiceName + "/RemoveTransfer"
)

type TransferServer interface {
	Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListUserTransfers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RemoveTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var TransferServiceDesc = grpc.ServiceDesc{
	ServiceName: TransferServiceName,
	HandlerType: (*TransferServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transfer", Handler: unaryHandler(methodTransfer, TransferServer.Transfer)},
		{MethodName: "ListUserTransfers", Handler: unaryHandler(methodListUserTransfers, TransferServer.ListUserTransfers)},
		{MethodName: "RemoveTransfer", Handler: unaryHandler(methodRemoveTransfer, TransferServer.RemoveTransfer)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "importexport/v1/transfer.proto",
}

func RegisterTransferServer(s grpc.ServiceRegistrar, srv TransferServer) {
	s.RegisterService(&TransferServiceDesc, srv)
}

func unaryHandler(fullMethod string, call func(TransferServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TransferServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TransferServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	transfers *service.TransferService
}

func NewGRPCHandler(transfers *service.TransferService) *GRPCHandler {
	return &GRPCHandler{transfers: transfers}
}

// Transfer expects {requestId?, userId, productId, quantity}.
func (h *GRPCHandler) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	var raw any
	if v, ok := fields["quantity"]; ok {
		raw = v.AsInterface()
	}
	quantity, err := service.ParseTransferQuantity(raw)
	if err != nil {
		return nil, toStatus(err)
	}

	result, err := h.transfers.Transfer(ctx,
		fields["requestId"].GetStringValue(),
		fields["userId"].GetStringValue(),
		fields["productId"].GetStringValue(),
		quantity,
	)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]any{
		"success":    true,
		"transferId": result.TransferID,
		"quantity":   result.Quantity,
		"transfer":   transferFields(result.Transfer),
	})
}

// ListUserTransfers expects {userId}.
func (h *GRPCHandler) ListUserTransfers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := req.GetFields()["userId"].GetStringValue()
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}

	transfers, err := h.transfers.ListByUser(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]any, 0, len(transfers))
	for _, t := range transfers {
		list = append(list, transferFields(t))
	}
	return structpb.NewStruct(map[string]any{"transfers": list})
}

// RemoveTransfer expects {transferId}.
func (h *GRPCHandler) RemoveTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["transferId"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "transferId is required")
	}

	res, err := h.transfers.Remove(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"success":      true,
		"deletedCount": res.DeletedCount,
	})
}

func transferFields(t domain.Transfer) map[string]any {
	return map[string]any{
		"id":            t.ID,
		"productId":     t.ProductID,
		"userId":        t.UserID,
		"quantity":      t.Quantity,
		"timestamp":     t.Timestamp.Format(time.RFC3339Nano),
		"name":          t.Name,
		"image":         t.Image,
		"price":         t.Price.InexactFloat64(),
		"rating":        t.Rating,
		"originCountry": t.OriginCountry,
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, "insufficient stock")
	case errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "duplicate request")
	case errors.Is(err, domain.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "store unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// UnaryLogger logs every unary call with its status code.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// TransferClient calls TransferService over an existing connection.
type TransferClient struct {
	cc grpc.ClientConnInterface
}

func NewTransferClient(cc grpc.ClientConnInterface) *TransferClient {
	return &TransferClient{cc: cc}
}

func (c *TransferClient) Transfer(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodTransfer, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TransferClient) ListUserTransfers(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListUserTransfers, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TransferClient) RemoveTransfer(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodRemoveTransfer, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
