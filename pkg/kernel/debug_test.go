package kernel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ctremu/hle-kernel/internal/fcram"
	"github.com/ctremu/hle-kernel/pkg/memory"
)

type DebugTestSuite struct {
	suite.Suite
	kernel *KernelSystem
}

func (s *DebugTestSuite) SetupTest() {
	k, err := New(Config{Arena: fcram.Options{SkipHostCheck: true}})
	s.Require().NoError(err)
	s.kernel = k
}

func (s *DebugTestSuite) TearDownTest() {
	s.Require().NoError(s.kernel.Close())
}

func (s *DebugTestSuite) TestLogLevels() {
	var out bytes.Buffer
	SetLogOutput(&out)
	defer SetLogOutput(nil)

	SetLogLevel(levelTrace)
	defer SetLogLevel(levelWarn)

	internalLogger.debugf("this is debugf %s", "hello")
	internalLogger.infof("this is infof %s", "hello")
	internalLogger.warnf("this is warnf %s", "hello")
	internalLogger.errorf("this is errorf %s", "hello")
	s.Contains(out.String(), "this is warnf hello")
	s.Contains(out.String(), "this is errorf hello")

	out.Reset()
	SetLogLevel(levelNoPrint)
	internalLogger.errorf("suppressed")
	s.Empty(out.String())
}

func (s *DebugTestSuite) TestDumpSharedMemory() {
	sm := s.kernel.CreateSharedMemory(nil, 0x1000, PermReadWrite, PermDontCare, 0, memory.RegionSystem, "dumped")
	defer sm.Release()

	dump := dumpSharedMemory(sm)
	s.Contains(dump, `name="dumped"`)
	s.Contains(dump, "size=0x1000")
	s.Contains(dump, "runs=[0x1000]")
	s.Contains(dump, "holding=1")
}

func TestDebugTestSuite(t *testing.T) {
	suite.Run(t, new(DebugTestSuite))
}

func TestConvertPermissions(t *testing.T) {
	cases := []struct {
		in   MemoryPermission
		want AreaPermission
	}{
		{PermNone, AreaNone},
		{PermRead, AreaRead},
		{PermReadWrite, AreaReadWrite},
		{PermReadWriteExecute, AreaReadWriteExecute},
		// Bits outside read/write/execute are dropped.
		{PermDontCare, AreaNone},
		{PermDontCare | PermRead, AreaRead},
	}
	for _, c := range cases {
		if got := convertPermissions(c.in); got != c.want {
			t.Errorf("convertPermissions(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMemoryPermissionString(t *testing.T) {
	if PermReadWrite.String() != "RW" {
		t.Errorf("unexpected: %s", PermReadWrite)
	}
	if PermDontCare.String() != "DontCare" {
		t.Errorf("unexpected: %s", PermDontCare)
	}
}
