// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cell

import (
	"reflect"

	"github.com/golang/mock/gomock"
)

// MockContext is a gomock double for Context, in the shape mockgen
// generates from cell.Context. Hand-written here rather than generated,
// since this module never invokes code-generation tooling.
type MockContext struct {
	ctrl     *gomock.Controller
	recorder *MockContextMockRecorder
}

// MockContextMockRecorder is the recorder half of MockContext.
type MockContextMockRecorder struct {
	mock *MockContext
}

// NewMockContext returns a MockContext controlled by ctrl.
func NewMockContext(ctrl *gomock.Controller) *MockContext {
	mock := &MockContext{ctrl: ctrl}
	mock.recorder = &MockContextMockRecorder{mock}
	return mock
}

// EXPECT returns the recorder used to set up expectations.
func (m *MockContext) EXPECT() *MockContextMockRecorder {
	return m.recorder
}

// Finalize implements Context.
func (m *MockContext) Finalize(c *Cell) (*Cell, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Finalize", c)
	ret0, _ := ret[0].(*Cell)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Finalize records an expectation for a Finalize call.
func (mr *MockContextMockRecorder) Finalize(c any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Finalize", reflect.TypeOf((*MockContext)(nil).Finalize), c)
}
