package stage

// Name identifies a pipeline stage.
type Name string

const (
	Verify     Name = "verify"
	Unzip      Name = "unzip"
	Confirm    Name = "confirm"
	Download   Name = "download"
	PostSteps  Name = "post_steps"
	Recompress Name = "recompress"
)

// Order lists the stages in execution order.
var Order = []Name{Verify, Unzip, Confirm, Download, PostSteps, Recompress}

func (n Name) String() string { return string(n) }

// Transfers reports whether the stage moves bytes and feeds the throughput
// estimator.
func (n Name) Transfers() bool {
	switch n {
	case Unzip, Download, Recompress:
		return true
	default:
		return false
	}
}
