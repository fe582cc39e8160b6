package pipeline

import (
	"strings"

	"github.com/matijazezelj/terramap/pkg/models"
)

// Custom functions for the aws rule pack. Each gets the live graph plus
// the immutable snapshot and is referenced by name from
// internal/provider/configs/aws.yaml.
func registerAWS(r *Registry) {
	r.Register("aws_restore_az_metadata", awsRestoreAZMetadata)
	r.Register("aws_restore_subnet_metadata", awsRestoreSubnetMetadata)
	r.Register("aws_invert_lb_targets", awsInvertLBTargets)
}

// awsRestoreAZMetadata copies availability_zone values from the snapshot
// back onto subnet nodes. Expansion clones and earlier rewrites can drop
// the field, and the subsequent insert_intermediate step needs it to name
// the availability-zone grouping nodes.
func awsRestoreAZMetadata(ctx *Context) error {
	for _, id := range ctx.Graph.MatchNodes("aws_subnet") {
		if _, ok := ctx.Graph.Metadata(id)["availability_zone"]; ok {
			continue
		}
		base, _, _ := models.SplitInstance(id)
		for _, source := range []string{id, base} {
			if az, ok := ctx.Snapshot.Metadata(source)["availability_zone"]; ok {
				ctx.Graph.SetMetadata(id, "availability_zone", az)
				break
			}
		}
	}
	return nil
}

// awsRestoreSubnetMetadata normalizes instance placement before expansion:
// an instance carrying only a scalar subnet_id gets a one-element
// subnet_ids list, so the expand step sees a uniform fanout field.
func awsRestoreSubnetMetadata(ctx *Context) error {
	for _, id := range ctx.Graph.MatchNodes(ctx.Pattern) {
		meta := ctx.Graph.Metadata(id)
		if _, ok := meta["subnet_ids"]; ok {
			continue
		}
		subnet, ok := meta["subnet_id"].(string)
		if !ok || subnet == "" {
			subnet, ok = ctx.Snapshot.Metadata(id)["subnet_id"].(string)
			if !ok || subnet == "" {
				continue
			}
		}
		ctx.Graph.SetMetadata(id, "subnet_ids", []any{subnet})
	}
	return nil
}

// awsInvertLBTargets reverses compute->load-balancer edges. Dependency
// direction has instances referencing the balancer, but the drawing
// convention wants traffic flow: balancer in front, pointing at targets.
func awsInvertLBTargets(ctx *Context) error {
	isLB := func(id string) bool {
		return strings.Contains(id, "aws_lb") || strings.Contains(id, "load_balancer")
	}
	isCompute := func(id string) bool {
		return strings.Contains(id, "aws_instance") ||
			strings.Contains(id, "aws_ecs") ||
			strings.Contains(id, "aws_fargate")
	}

	for _, lb := range ctx.Graph.Nodes() {
		if !isLB(lb) {
			continue
		}
		for _, parent := range ctx.Graph.Parents(lb) {
			if !isCompute(parent) {
				continue
			}
			ctx.Graph.RemoveEdge(parent, lb)
			ctx.Graph.AddEdge(lb, parent)
			ctx.Logger.Debug("reversed load balancer edge", "balancer", lb, "target", parent)
		}
	}
	return nil
}
