package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/import-export/internal/adapter/events"
	"github.com/rl1809/import-export/internal/adapter/storage"
	"github.com/rl1809/import-export/internal/core/domain"
	"github.com/rl1809/import-export/internal/core/service"
)

const bufSize = 1024 * 1024

type TransferGRPCSuite struct {
	suite.Suite
	leakOpt  goleak.Option
	listener *bufconn.Listener
	server   *grpc.Server
	conn     *grpc.ClientConn
	client   *TransferClient
	health   healthpb.HealthClient
	catalog  *service.CatalogService
	repo     *storage.MemoryAdapter
}

func (s *TransferGRPCSuite) SetupTest() {
	s.leakOpt = goleak.IgnoreCurrent()
	s.listener = bufconn.Listen(bufSize)
	s.repo = storage.NewMemoryAdapter()
	s.catalog = service.NewCatalogService(s.repo, events.Nop{}, nil)
	transfers := service.NewTransferService(s.repo, &memoryIdempotency{keys: make(map[string]bool)}, events.Nop{}, nil, false)

	s.server = grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogger(nil)))
	RegisterTransferServer(s.server, NewGRPCHandler(transfers))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s.server, hs)
	hs.SetServingStatus(TransferServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() { s.server.Serve(s.listener) }()

	var err error
	s.conn, err = grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	s.client = NewTransferClient(s.conn)
	s.health = healthpb.NewHealthClient(s.conn)
}

func (s *TransferGRPCSuite) TearDownTest() {
	s.conn.Close()
	s.server.Stop()
	s.listener.Close()
	goleak.VerifyNone(s.T(), s.leakOpt)
}

func (s *TransferGRPCSuite) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (s *TransferGRPCSuite) listProduct(quantity int) *domain.Product {
	p, err := s.catalog.Create(context.Background(), map[string]any{
		"name":          "Black Pepper",
		"image":         "https://img.example.com/pepper.png",
		"price":         7.75,
		"originCountry": "India",
		"rating":        4.8,
		"quantity":      quantity,
		"ownerId":       "exporter-1",
	})
	s.Require().NoError(err)
	return p
}

func (s *TransferGRPCSuite) request(fields map[string]any) *structpb.Struct {
	req, err := structpb.NewStruct(fields)
	s.Require().NoError(err)
	return req
}

func (s *TransferGRPCSuite) TestTransfer() {
	ctx, cancel := s.ctx()
	defer cancel()
	p := s.listProduct(5)

	resp, err := s.client.Transfer(ctx, s.request(map[string]any{
		"userId": "importer-1", "productId": p.ID, "quantity": 2,
	}))
	s.Require().NoError(err)

	fields := resp.GetFields()
	s.True(fields["success"].GetBoolValue())
	s.Equal(float64(3), fields["quantity"].GetNumberValue())
	s.NotEmpty(fields["transferId"].GetStringValue())
	s.Equal("Black Pepper", fields["transfer"].GetStructValue().GetFields()["name"].GetStringValue())
}

func (s *TransferGRPCSuite) TestTransfer_ErrorCodes() {
	ctx, cancel := s.ctx()
	defer cancel()
	p := s.listProduct(1)

	cases := []struct {
		name string
		req  map[string]any
		code codes.Code
	}{
		{"zero quantity", map[string]any{"userId": "u1", "productId": p.ID, "quantity": 0}, codes.InvalidArgument},
		{"fractional quantity", map[string]any{"userId": "u1", "productId": p.ID, "quantity": 1.5}, codes.InvalidArgument},
		{"missing user", map[string]any{"productId": p.ID, "quantity": 1}, codes.InvalidArgument},
		{"unknown product", map[string]any{"userId": "u1", "productId": "missing", "quantity": 1}, codes.NotFound},
		{"too many", map[string]any{"userId": "u1", "productId": p.ID, "quantity": 9}, codes.FailedPrecondition},
	}
	for _, tc := range cases {
		_, err := s.client.Transfer(ctx, s.request(tc.req))
		s.Equal(tc.code, status.Code(err), tc.name)
	}
}

func (s *TransferGRPCSuite) TestTransfer_DuplicateRequest() {
	ctx, cancel := s.ctx()
	defer cancel()
	p := s.listProduct(5)
	req := s.request(map[string]any{"requestId": "r-1", "userId": "u1", "productId": p.ID, "quantity": 1})

	_, err := s.client.Transfer(ctx, req)
	s.Require().NoError(err)

	_, err = s.client.Transfer(ctx, req)
	s.Equal(codes.AlreadyExists, status.Code(err))
}

func (s *TransferGRPCSuite) TestListAndRemove() {
	ctx, cancel := s.ctx()
	defer cancel()
	p := s.listProduct(5)

	resp, err := s.client.Transfer(ctx, s.request(map[string]any{"userId": "u1", "productId": p.ID, "quantity": 2}))
	s.Require().NoError(err)
	id := resp.GetFields()["transferId"].GetStringValue()

	list, err := s.client.ListUserTransfers(ctx, s.request(map[string]any{"userId": "u1"}))
	s.Require().NoError(err)
	items := list.GetFields()["transfers"].GetListValue().GetValues()
	s.Require().Len(items, 1)
	s.Equal(id, items[0].GetStructValue().GetFields()["id"].GetStringValue())

	removed, err := s.client.RemoveTransfer(ctx, s.request(map[string]any{"transferId": id}))
	s.Require().NoError(err)
	s.Equal(float64(1), removed.GetFields()["deletedCount"].GetNumberValue())

	_, err = s.client.RemoveTransfer(ctx, s.request(map[string]any{"transferId": id}))
	s.Equal(codes.NotFound, status.Code(err))

	_, err = s.client.ListUserTransfers(ctx, s.request(map[string]any{}))
	s.Equal(codes.InvalidArgument, status.Code(err))
}

func (s *TransferGRPCSuite) TestHealth() {
	ctx, cancel := s.ctx()
	defer cancel()

	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: TransferServiceName})
	s.Require().NoError(err)
	s.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestTransferGRPCSuite(t *testing.T) {
	suite.Run(t, new(TransferGRPCSuite))
}
