package command

import "fmt"

// VerifyInverse checks that deactivate undoes activate: every binding
// made is removed before any facility is touched, every created
// resource is deleted exactly once, and a resource taken out of
// service is one the activation provisioned and is taken down before
// it is deleted.
func VerifyInverse(activate, deactivate Script) error {
	connected := make(map[string]bool)
	provisioned := make(map[string]bool)
	created := make(map[string]bool)
	for i, c := range activate {
		switch c.Op {
		case Connect:
			connected[c.Resource] = true
		case Create, Size:
			if len(connected) > 0 {
				return fmt.Errorf("activate[%d] %s follows a connect", i, c)
			}
			provisioned[c.Resource] = true
			if c.Op == Create {
				if created[c.Resource] {
					return fmt.Errorf("activate[%d] creates %s twice", i, c.Resource)
				}
				created[c.Resource] = true
			}
		default:
			return fmt.Errorf("activate[%d] unexpected %s", i, c)
		}
	}

	disconnected := make(map[string]bool)
	down := make(map[string]bool)
	deleted := make(map[string]bool)
	teardown := false
	for i, c := range deactivate {
		switch c.Op {
		case Disconnect:
			if teardown {
				return fmt.Errorf("deactivate[%d] %s follows facility teardown", i, c)
			}
			if !connected[c.Resource] {
				return fmt.Errorf("deactivate[%d] removes binding %s never made", i, c.Resource)
			}
			disconnected[c.Resource] = true
		case OutOfService:
			teardown = true
			if !provisioned[c.Resource] {
				return fmt.Errorf("deactivate[%d] takes down %s never provisioned", i, c.Resource)
			}
			if deleted[c.Resource] {
				return fmt.Errorf("deactivate[%d] takes down %s after deleting it", i, c.Resource)
			}
			down[c.Resource] = true
		case Delete:
			teardown = true
			if !created[c.Resource] {
				return fmt.Errorf("deactivate[%d] deletes %s never created", i, c.Resource)
			}
			if deleted[c.Resource] {
				return fmt.Errorf("deactivate[%d] deletes %s twice", i, c.Resource)
			}
			deleted[c.Resource] = true
		default:
			return fmt.Errorf("deactivate[%d] unexpected %s", i, c)
		}
	}

	for r := range connected {
		if !disconnected[r] {
			return fmt.Errorf("binding %s left in place", r)
		}
	}
	for r := range created {
		if !deleted[r] {
			return fmt.Errorf("resource %s left provisioned", r)
		}
	}
	return nil
}
