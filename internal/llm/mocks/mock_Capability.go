// Package mocks provides test doubles for the language model capability.
package mocks

import (
	"context"

	llm "github.com/sells-group/greenscore/internal/llm"
	mock "github.com/stretchr/testify/mock"
)

// MockCapability is a mock type for the Capability interface.
type MockCapability struct {
	mock.Mock
}

// Complete provides a mock function with given fields: ctx, req
func (_m *MockCapability) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Complete")
	}

	var r0 *llm.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, llm.Request) (*llm.Response, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, llm.Request) *llm.Response); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*llm.Response)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, llm.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockCapability creates a new instance of MockCapability.
func NewMockCapability(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCapability {
	mock := &MockCapability{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
