// Package mocks provides test doubles for the openai client.
package mocks

import (
	"context"

	openai "github.com/sells-group/greenscore/pkg/openai"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreateChatCompletion provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateChatCompletion(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreateChatCompletion")
	}

	var r0 *openai.ChatResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, openai.ChatRequest) (*openai.ChatResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, openai.ChatRequest) *openai.ChatResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*openai.ChatResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, openai.ChatRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
