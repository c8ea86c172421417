package circuit

import (
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/fs"
)

// shape is the compiled circuit and key material for one record count.
type shape struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// shapeCache compiles circuits lazily and reuses key material across proofs
// of the same shape. When keyDir is set, keys are persisted so a separate
// process can verify with the same verifying key.
type shapeCache struct {
	mu     sync.Mutex
	keyDir string
	shapes map[int]*shape
	log    log.Logger
}

func newShapeCache() *shapeCache {
	return &shapeCache{
		shapes: make(map[int]*shape),
		log:    log.DefaultLogger(),
	}
}

func (c *shapeCache) get(records int) (*shape, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.shapes[records]; ok {
		return s, nil
	}

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, newPipelineCircuit(records))
	if err != nil {
		return nil, fmt.Errorf("compiling pipeline circuit: %w", err)
	}
	c.log.Debugw("pipeline circuit compiled", "records", records, "constraints", ccs.GetNbConstraints())

	s := &shape{ccs: ccs}
	if err := c.loadKeys(records, s); err != nil {
		return nil, err
	}
	c.shapes[records] = s
	return s, nil
}

func (c *shapeCache) loadKeys(records int, s *shape) error {
	pkName := fmt.Sprintf("pipeline-%d.pk", records)
	vkName := fmt.Sprintf("pipeline-%d.vk", records)

	if c.keyDir != "" && fs.FileExists(c.keyDir, pkName) && fs.FileExists(c.keyDir, vkName) {
		s.pk = groth16.NewProvingKey(ecc.BN254)
		s.vk = groth16.NewVerifyingKey(ecc.BN254)
		if err := readKey(path.Join(c.keyDir, pkName), s.pk); err != nil {
			return err
		}
		if err := readKey(path.Join(c.keyDir, vkName), s.vk); err != nil {
			return err
		}
		c.log.Debugw("circuit keys loaded", "records", records, "dir", c.keyDir)
		return nil
	}

	pk, vk, err := groth16.Setup(s.ccs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	s.pk, s.vk = pk, vk

	if c.keyDir == "" {
		return nil
	}
	if _, err := fs.CreateSecureFolder(c.keyDir); err != nil {
		return fmt.Errorf("key folder: %w", err)
	}
	if err := writeKey(path.Join(c.keyDir, pkName), s.pk); err != nil {
		return err
	}
	if err := writeKey(path.Join(c.keyDir, vkName), s.vk); err != nil {
		return err
	}
	c.log.Infow("circuit keys generated", "records", records, "dir", c.keyDir)
	return nil
}

func readKey(file string, key interface{ ReadFrom(r io.Reader) (int64, error) }) error {
	fd, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer fd.Close()
	if _, err := key.ReadFrom(fd); err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}
	return nil
}

func writeKey(file string, key interface{ WriteTo(w io.Writer) (int64, error) }) error {
	fd, err := fs.CreateSecureFile(file)
	if err != nil {
		return fmt.Errorf("creating %s: %w", file, err)
	}
	defer fd.Close()
	if _, err := key.WriteTo(fd); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return nil
}
