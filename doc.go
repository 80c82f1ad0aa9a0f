/*
go-detkit provides the geometric and assignment primitives used inside
object detection model training and inference.  It aims to be a lite set of
building blocks in the spirit of the detection layers found in the larger
deep learning frameworks.

The packages are layered leaves first:

  - geometry: box and polygon overlap (IoU), polygon clipping and the
    dense overlap matrix
  - anchor: deterministic anchor grids and SSD prior boxes
  - coder: center/size regression target encoding and decoding
  - matcher: greedy or optimal bipartite matching and target assignment
  - nms: single and multi-class non-maximum suppression for boxes and
    polygons
  - mining: hard negative example mining
  - proposal: region proposal generation and SSD detection output
  - target: training target building from anchors and ground truth
  - tensorop: adapters for gorgonia dense tensors
  - config: YAML configuration for all of the above

Every operation is a pure function over in-memory inputs and is safe to call
concurrently for independent images.

See example code and usage in the example subdirectory.
*/
package detkit
