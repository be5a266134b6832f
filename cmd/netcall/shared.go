package main

import (
	"errors"
	"fmt"
	"io"
	"netcall/server"
	"netcall/service"
	"sync"
)

// AddNumbers is the record argument of SharedObject.AddTwo.
type AddNumbers struct {
	A int
	B int
}

// SharedObject is the example target served by `netcall serve`.
type SharedObject struct {
	out io.Writer

	mu     sync.Mutex
	number int
}

func (s *SharedObject) Print(text string) error {
	fmt.Fprintln(s.out, text)
	return nil
}

func (s *SharedObject) AddAndPrint(n int) (int, error) {
	s.mu.Lock()
	s.number += n
	number := s.number
	s.mu.Unlock()

	fmt.Fprintln(s.out, number)
	return number, nil
}

func (s *SharedObject) AddTwo(v AddNumbers) (int, error) {
	result := v.A + v.B
	fmt.Fprintf(s.out, "%d + %d = %d\n", v.A, v.B, result)
	return result, nil
}

func newSharedObject(out io.Writer) *service.Object {
	shared := &SharedObject{out: out}
	return service.NewObject("SharedObject").
		Method("Print", service.Proc1(shared.Print)).
		Method("AddAndPrint", service.Func1(shared.AddAndPrint)).
		Method("AddTwo", service.Func1(shared.AddTwo))
}

// exampleIDs are served by the serve command, each by its own instance.
var exampleIDs = []string{"foo", "bar", "fizz", "fazz"}

// registerExamples binds a fresh SharedObject under every example id. The
// bindings always take effect; the error reports failed publications.
func registerExamples(svr *server.Server, out io.Writer) error {
	var errs []error
	for _, id := range exampleIDs {
		if err := svr.Register(newSharedObject(out), id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
