package ir

// JVM opcodes.
const (
	OpNop             Opcode = 0x00
	OpAconstNull      Opcode = 0x01
	OpIconstM1        Opcode = 0x02
	OpIconst0         Opcode = 0x03
	OpIconst1         Opcode = 0x04
	OpIconst2         Opcode = 0x05
	OpIconst3         Opcode = 0x06
	OpIconst4         Opcode = 0x07
	OpIconst5         Opcode = 0x08
	OpLconst0         Opcode = 0x09
	OpLconst1         Opcode = 0x0a
	OpFconst0         Opcode = 0x0b
	OpFconst1         Opcode = 0x0c
	OpFconst2         Opcode = 0x0d
	OpDconst0         Opcode = 0x0e
	OpDconst1         Opcode = 0x0f
	OpBipush          Opcode = 0x10
	OpSipush          Opcode = 0x11
	OpLdc             Opcode = 0x12
	OpLdcW            Opcode = 0x13
	OpLdc2W           Opcode = 0x14
	OpIload           Opcode = 0x15
	OpLload           Opcode = 0x16
	OpFload           Opcode = 0x17
	OpDload           Opcode = 0x18
	OpAload           Opcode = 0x19
	OpIload0          Opcode = 0x1a
	OpIload1          Opcode = 0x1b
	OpIload2          Opcode = 0x1c
	OpIload3          Opcode = 0x1d
	OpLload0          Opcode = 0x1e
	OpLload1          Opcode = 0x1f
	OpLload2          Opcode = 0x20
	OpLload3          Opcode = 0x21
	OpFload0          Opcode = 0x22
	OpFload1          Opcode = 0x23
	OpFload2          Opcode = 0x24
	OpFload3          Opcode = 0x25
	OpDload0          Opcode = 0x26
	OpDload1          Opcode = 0x27
	OpDload2          Opcode = 0x28
	OpDload3          Opcode = 0x29
	OpAload0          Opcode = 0x2a
	OpAload1          Opcode = 0x2b
	OpAload2          Opcode = 0x2c
	OpAload3          Opcode = 0x2d
	OpIaload          Opcode = 0x2e
	OpLaload          Opcode = 0x2f
	OpFaload          Opcode = 0x30
	OpDaload          Opcode = 0x31
	OpAaload          Opcode = 0x32
	OpBaload          Opcode = 0x33
	OpCaload          Opcode = 0x34
	OpSaload          Opcode = 0x35
	OpIstore          Opcode = 0x36
	OpLstore          Opcode = 0x37
	OpFstore          Opcode = 0x38
	OpDstore          Opcode = 0x39
	OpAstore          Opcode = 0x3a
	OpIstore0         Opcode = 0x3b
	OpIstore1         Opcode = 0x3c
	OpIstore2         Opcode = 0x3d
	OpIstore3         Opcode = 0x3e
	OpLstore0         Opcode = 0x3f
	OpLstore1         Opcode = 0x40
	OpLstore2         Opcode = 0x41
	OpLstore3         Opcode = 0x42
	OpFstore0         Opcode = 0x43
	OpFstore1         Opcode = 0x44
	OpFstore2         Opcode = 0x45
	OpFstore3         Opcode = 0x46
	OpDstore0         Opcode = 0x47
	OpDstore1         Opcode = 0x48
	OpDstore2         Opcode = 0x49
	OpDstore3         Opcode = 0x4a
	OpAstore0         Opcode = 0x4b
	OpAstore1         Opcode = 0x4c
	OpAstore2         Opcode = 0x4d
	OpAstore3         Opcode = 0x4e
	OpIastore         Opcode = 0x4f
	OpLastore         Opcode = 0x50
	OpFastore         Opcode = 0x51
	OpDastore         Opcode = 0x52
	OpAastore         Opcode = 0x53
	OpBastore         Opcode = 0x54
	OpCastore         Opcode = 0x55
	OpSastore         Opcode = 0x56
	OpPop             Opcode = 0x57
	OpPop2            Opcode = 0x58
	OpDup             Opcode = 0x59
	OpDupX1           Opcode = 0x5a
	OpDupX2           Opcode = 0x5b
	OpDup2            Opcode = 0x5c
	OpDup2X1          Opcode = 0x5d
	OpDup2X2          Opcode = 0x5e
	OpSwap            Opcode = 0x5f
	OpIadd            Opcode = 0x60
	OpLadd            Opcode = 0x61
	OpFadd            Opcode = 0x62
	OpDadd            Opcode = 0x63
	OpIsub            Opcode = 0x64
	OpLsub            Opcode = 0x65
	OpFsub            Opcode = 0x66
	OpDsub            Opcode = 0x67
	OpImul            Opcode = 0x68
	OpLmul            Opcode = 0x69
	OpFmul            Opcode = 0x6a
	OpDmul            Opcode = 0x6b
	OpIdiv            Opcode = 0x6c
	OpLdiv            Opcode = 0x6d
	OpFdiv            Opcode = 0x6e
	OpDdiv            Opcode = 0x6f
	OpIrem            Opcode = 0x70
	OpLrem            Opcode = 0x71
	OpFrem            Opcode = 0x72
	OpDrem            Opcode = 0x73
	OpIneg            Opcode = 0x74
	OpLneg            Opcode = 0x75
	OpFneg            Opcode = 0x76
	OpDneg            Opcode = 0x77
	OpIshl            Opcode = 0x78
	OpLshl            Opcode = 0x79
	OpIshr            Opcode = 0x7a
	OpLshr            Opcode = 0x7b
	OpIushr           Opcode = 0x7c
	OpLushr           Opcode = 0x7d
	OpIand            Opcode = 0x7e
	OpLand            Opcode = 0x7f
	OpIor             Opcode = 0x80
	OpLor             Opcode = 0x81
	OpIxor            Opcode = 0x82
	OpLxor            Opcode = 0x83
	OpIinc            Opcode = 0x84
	OpI2l             Opcode = 0x85
	OpI2f             Opcode = 0x86
	OpI2d             Opcode = 0x87
	OpL2i             Opcode = 0x88
	OpL2f             Opcode = 0x89
	OpL2d             Opcode = 0x8a
	OpF2i             Opcode = 0x8b
	OpF2l             Opcode = 0x8c
	OpF2d             Opcode = 0x8d
	OpD2i             Opcode = 0x8e
	OpD2l             Opcode = 0x8f
	OpD2f             Opcode = 0x90
	OpI2b             Opcode = 0x91
	OpI2c             Opcode = 0x92
	OpI2s             Opcode = 0x93
	OpLcmp            Opcode = 0x94
	OpFcmpl           Opcode = 0x95
	OpFcmpg           Opcode = 0x96
	OpDcmpl           Opcode = 0x97
	OpDcmpg           Opcode = 0x98
	OpIfeq            Opcode = 0x99
	OpIfne            Opcode = 0x9a
	OpIflt            Opcode = 0x9b
	OpIfge            Opcode = 0x9c
	OpIfgt            Opcode = 0x9d
	OpIfle            Opcode = 0x9e
	OpIfIcmpeq        Opcode = 0x9f
	OpIfIcmpne        Opcode = 0xa0
	OpIfIcmplt        Opcode = 0xa1
	OpIfIcmpge        Opcode = 0xa2
	OpIfIcmpgt        Opcode = 0xa3
	OpIfIcmple        Opcode = 0xa4
	OpIfAcmpeq        Opcode = 0xa5
	OpIfAcmpne        Opcode = 0xa6
	OpGoto            Opcode = 0xa7
	OpJsr             Opcode = 0xa8
	OpRet             Opcode = 0xa9
	OpTableswitch     Opcode = 0xaa
	OpLookupswitch    Opcode = 0xab
	OpIreturn         Opcode = 0xac
	OpLreturn         Opcode = 0xad
	OpFreturn         Opcode = 0xae
	OpDreturn         Opcode = 0xaf
	OpAreturn         Opcode = 0xb0
	OpReturn          Opcode = 0xb1
	OpGetstatic       Opcode = 0xb2
	OpPutstatic       Opcode = 0xb3
	OpGetfield        Opcode = 0xb4
	OpPutfield        Opcode = 0xb5
	OpInvokevirtual   Opcode = 0xb6
	OpInvokespecial   Opcode = 0xb7
	OpInvokestatic    Opcode = 0xb8
	OpInvokeinterface Opcode = 0xb9
	OpInvokedynamic   Opcode = 0xba
	OpNew             Opcode = 0xbb
	OpNewarray        Opcode = 0xbc
	OpAnewarray       Opcode = 0xbd
	OpArraylength     Opcode = 0xbe
	OpAthrow          Opcode = 0xbf
	OpCheckcast       Opcode = 0xc0
	OpInstanceof      Opcode = 0xc1
	OpMonitorenter    Opcode = 0xc2
	OpMonitorexit     Opcode = 0xc3
	OpWide            Opcode = 0xc4
	OpMultianewarray  Opcode = 0xc5
	OpIfnull          Opcode = 0xc6
	OpIfnonnull       Opcode = 0xc7
	OpGotoW           Opcode = 0xc8
	OpJsrW            Opcode = 0xc9
)

var opTable = [256]opInfo{
	OpNop:             {name: "nop", cat: CatNop},
	OpAconstNull:      {name: "aconst_null", cat: CatConst},
	OpIconstM1:        {name: "iconst_m1", cat: CatConst},
	OpIconst0:         {name: "iconst_0", cat: CatConst},
	OpIconst1:         {name: "iconst_1", cat: CatConst},
	OpIconst2:         {name: "iconst_2", cat: CatConst},
	OpIconst3:         {name: "iconst_3", cat: CatConst},
	OpIconst4:         {name: "iconst_4", cat: CatConst},
	OpIconst5:         {name: "iconst_5", cat: CatConst},
	OpLconst0:         {name: "lconst_0", cat: CatConst},
	OpLconst1:         {name: "lconst_1", cat: CatConst},
	OpFconst0:         {name: "fconst_0", cat: CatConst},
	OpFconst1:         {name: "fconst_1", cat: CatConst},
	OpFconst2:         {name: "fconst_2", cat: CatConst},
	OpDconst0:         {name: "dconst_0", cat: CatConst},
	OpDconst1:         {name: "dconst_1", cat: CatConst},
	OpBipush:          {name: "bipush", cat: CatConst},
	OpSipush:          {name: "sipush", cat: CatConst},
	OpLdc:             {name: "ldc", cat: CatConst},
	OpLdcW:            {name: "ldc_w", cat: CatConst},
	OpLdc2W:           {name: "ldc2_w", cat: CatConst},
	OpIload:           {name: "iload", cat: CatLoad},
	OpLload:           {name: "lload", cat: CatLoad},
	OpFload:           {name: "fload", cat: CatLoad},
	OpDload:           {name: "dload", cat: CatLoad},
	OpAload:           {name: "aload", cat: CatLoad},
	OpIload0:          {name: "iload_0", cat: CatLoad},
	OpIload1:          {name: "iload_1", cat: CatLoad},
	OpIload2:          {name: "iload_2", cat: CatLoad},
	OpIload3:          {name: "iload_3", cat: CatLoad},
	OpLload0:          {name: "lload_0", cat: CatLoad},
	OpLload1:          {name: "lload_1", cat: CatLoad},
	OpLload2:          {name: "lload_2", cat: CatLoad},
	OpLload3:          {name: "lload_3", cat: CatLoad},
	OpFload0:          {name: "fload_0", cat: CatLoad},
	OpFload1:          {name: "fload_1", cat: CatLoad},
	OpFload2:          {name: "fload_2", cat: CatLoad},
	OpFload3:          {name: "fload_3", cat: CatLoad},
	OpDload0:          {name: "dload_0", cat: CatLoad},
	OpDload1:          {name: "dload_1", cat: CatLoad},
	OpDload2:          {name: "dload_2", cat: CatLoad},
	OpDload3:          {name: "dload_3", cat: CatLoad},
	OpAload0:          {name: "aload_0", cat: CatLoad},
	OpAload1:          {name: "aload_1", cat: CatLoad},
	OpAload2:          {name: "aload_2", cat: CatLoad},
	OpAload3:          {name: "aload_3", cat: CatLoad},
	OpIaload:          {name: "iaload", cat: CatArrayLoad},
	OpLaload:          {name: "laload", cat: CatArrayLoad},
	OpFaload:          {name: "faload", cat: CatArrayLoad},
	OpDaload:          {name: "daload", cat: CatArrayLoad},
	OpAaload:          {name: "aaload", cat: CatArrayLoad},
	OpBaload:          {name: "baload", cat: CatArrayLoad},
	OpCaload:          {name: "caload", cat: CatArrayLoad},
	OpSaload:          {name: "saload", cat: CatArrayLoad},
	OpIstore:          {name: "istore", cat: CatStore},
	OpLstore:          {name: "lstore", cat: CatStore},
	OpFstore:          {name: "fstore", cat: CatStore},
	OpDstore:          {name: "dstore", cat: CatStore},
	OpAstore:          {name: "astore", cat: CatStore},
	OpIstore0:         {name: "istore_0", cat: CatStore},
	OpIstore1:         {name: "istore_1", cat: CatStore},
	OpIstore2:         {name: "istore_2", cat: CatStore},
	OpIstore3:         {name: "istore_3", cat: CatStore},
	OpLstore0:         {name: "lstore_0", cat: CatStore},
	OpLstore1:         {name: "lstore_1", cat: CatStore},
	OpLstore2:         {name: "lstore_2", cat: CatStore},
	OpLstore3:         {name: "lstore_3", cat: CatStore},
	OpFstore0:         {name: "fstore_0", cat: CatStore},
	OpFstore1:         {name: "fstore_1", cat: CatStore},
	OpFstore2:         {name: "fstore_2", cat: CatStore},
	OpFstore3:         {name: "fstore_3", cat: CatStore},
	OpDstore0:         {name: "dstore_0", cat: CatStore},
	OpDstore1:         {name: "dstore_1", cat: CatStore},
	OpDstore2:         {name: "dstore_2", cat: CatStore},
	OpDstore3:         {name: "dstore_3", cat: CatStore},
	OpAstore0:         {name: "astore_0", cat: CatStore},
	OpAstore1:         {name: "astore_1", cat: CatStore},
	OpAstore2:         {name: "astore_2", cat: CatStore},
	OpAstore3:         {name: "astore_3", cat: CatStore},
	OpIastore:         {name: "iastore", cat: CatArrayStore},
	OpLastore:         {name: "lastore", cat: CatArrayStore},
	OpFastore:         {name: "fastore", cat: CatArrayStore},
	OpDastore:         {name: "dastore", cat: CatArrayStore},
	OpAastore:         {name: "aastore", cat: CatArrayStore},
	OpBastore:         {name: "bastore", cat: CatArrayStore},
	OpCastore:         {name: "castore", cat: CatArrayStore},
	OpSastore:         {name: "sastore", cat: CatArrayStore},
	OpPop:             {name: "pop", cat: CatStack},
	OpPop2:            {name: "pop2", cat: CatStack},
	OpDup:             {name: "dup", cat: CatStack},
	OpDupX1:           {name: "dup_x1", cat: CatStack},
	OpDupX2:           {name: "dup_x2", cat: CatStack},
	OpDup2:            {name: "dup2", cat: CatStack},
	OpDup2X1:          {name: "dup2_x1", cat: CatStack},
	OpDup2X2:          {name: "dup2_x2", cat: CatStack},
	OpSwap:            {name: "swap", cat: CatStack},
	OpIadd:            {name: "iadd", cat: CatArith},
	OpLadd:            {name: "ladd", cat: CatArith},
	OpFadd:            {name: "fadd", cat: CatArith},
	OpDadd:            {name: "dadd", cat: CatArith},
	OpIsub:            {name: "isub", cat: CatArith},
	OpLsub:            {name: "lsub", cat: CatArith},
	OpFsub:            {name: "fsub", cat: CatArith},
	OpDsub:            {name: "dsub", cat: CatArith},
	OpImul:            {name: "imul", cat: CatArith},
	OpLmul:            {name: "lmul", cat: CatArith},
	OpFmul:            {name: "fmul", cat: CatArith},
	OpDmul:            {name: "dmul", cat: CatArith},
	OpIdiv:            {name: "idiv", cat: CatArith},
	OpLdiv:            {name: "ldiv", cat: CatArith},
	OpFdiv:            {name: "fdiv", cat: CatArith},
	OpDdiv:            {name: "ddiv", cat: CatArith},
	OpIrem:            {name: "irem", cat: CatArith},
	OpLrem:            {name: "lrem", cat: CatArith},
	OpFrem:            {name: "frem", cat: CatArith},
	OpDrem:            {name: "drem", cat: CatArith},
	OpIneg:            {name: "ineg", cat: CatArith},
	OpLneg:            {name: "lneg", cat: CatArith},
	OpFneg:            {name: "fneg", cat: CatArith},
	OpDneg:            {name: "dneg", cat: CatArith},
	OpIshl:            {name: "ishl", cat: CatArith},
	OpLshl:            {name: "lshl", cat: CatArith},
	OpIshr:            {name: "ishr", cat: CatArith},
	OpLshr:            {name: "lshr", cat: CatArith},
	OpIushr:           {name: "iushr", cat: CatArith},
	OpLushr:           {name: "lushr", cat: CatArith},
	OpIand:            {name: "iand", cat: CatArith},
	OpLand:            {name: "land", cat: CatArith},
	OpIor:             {name: "ior", cat: CatArith},
	OpLor:             {name: "lor", cat: CatArith},
	OpIxor:            {name: "ixor", cat: CatArith},
	OpLxor:            {name: "lxor", cat: CatArith},
	OpIinc:            {name: "iinc", cat: CatIinc},
	OpI2l:             {name: "i2l", cat: CatConvert},
	OpI2f:             {name: "i2f", cat: CatConvert},
	OpI2d:             {name: "i2d", cat: CatConvert},
	OpL2i:             {name: "l2i", cat: CatConvert},
	OpL2f:             {name: "l2f", cat: CatConvert},
	OpL2d:             {name: "l2d", cat: CatConvert},
	OpF2i:             {name: "f2i", cat: CatConvert},
	OpF2l:             {name: "f2l", cat: CatConvert},
	OpF2d:             {name: "f2d", cat: CatConvert},
	OpD2i:             {name: "d2i", cat: CatConvert},
	OpD2l:             {name: "d2l", cat: CatConvert},
	OpD2f:             {name: "d2f", cat: CatConvert},
	OpI2b:             {name: "i2b", cat: CatConvert},
	OpI2c:             {name: "i2c", cat: CatConvert},
	OpI2s:             {name: "i2s", cat: CatConvert},
	OpLcmp:            {name: "lcmp", cat: CatCompare},
	OpFcmpl:           {name: "fcmpl", cat: CatCompare},
	OpFcmpg:           {name: "fcmpg", cat: CatCompare},
	OpDcmpl:           {name: "dcmpl", cat: CatCompare},
	OpDcmpg:           {name: "dcmpg", cat: CatCompare},
	OpIfeq:            {name: "ifeq", cat: CatBranch},
	OpIfne:            {name: "ifne", cat: CatBranch},
	OpIflt:            {name: "iflt", cat: CatBranch},
	OpIfge:            {name: "ifge", cat: CatBranch},
	OpIfgt:            {name: "ifgt", cat: CatBranch},
	OpIfle:            {name: "ifle", cat: CatBranch},
	OpIfIcmpeq:        {name: "if_icmpeq", cat: CatBranch},
	OpIfIcmpne:        {name: "if_icmpne", cat: CatBranch},
	OpIfIcmplt:        {name: "if_icmplt", cat: CatBranch},
	OpIfIcmpge:        {name: "if_icmpge", cat: CatBranch},
	OpIfIcmpgt:        {name: "if_icmpgt", cat: CatBranch},
	OpIfIcmple:        {name: "if_icmple", cat: CatBranch},
	OpIfAcmpeq:        {name: "if_acmpeq", cat: CatBranch},
	OpIfAcmpne:        {name: "if_acmpne", cat: CatBranch},
	OpGoto:            {name: "goto", cat: CatGoto},
	OpJsr:             {name: "jsr", cat: CatJsr},
	OpRet:             {name: "ret", cat: CatRet},
	OpTableswitch:     {name: "tableswitch", cat: CatSwitch},
	OpLookupswitch:    {name: "lookupswitch", cat: CatSwitch},
	OpIreturn:         {name: "ireturn", cat: CatReturn},
	OpLreturn:         {name: "lreturn", cat: CatReturn},
	OpFreturn:         {name: "freturn", cat: CatReturn},
	OpDreturn:         {name: "dreturn", cat: CatReturn},
	OpAreturn:         {name: "areturn", cat: CatReturn},
	OpReturn:          {name: "return", cat: CatReturn},
	OpGetstatic:       {name: "getstatic", cat: CatFieldGet},
	OpPutstatic:       {name: "putstatic", cat: CatFieldPut},
	OpGetfield:        {name: "getfield", cat: CatFieldGet},
	OpPutfield:        {name: "putfield", cat: CatFieldPut},
	OpInvokevirtual:   {name: "invokevirtual", cat: CatInvoke},
	OpInvokespecial:   {name: "invokespecial", cat: CatInvoke},
	OpInvokestatic:    {name: "invokestatic", cat: CatInvoke},
	OpInvokeinterface: {name: "invokeinterface", cat: CatInvoke},
	OpInvokedynamic:   {name: "invokedynamic", cat: CatInvoke},
	OpNew:             {name: "new", cat: CatNew},
	OpNewarray:        {name: "newarray", cat: CatNewArray},
	OpAnewarray:       {name: "anewarray", cat: CatNewArray},
	OpArraylength:     {name: "arraylength", cat: CatArrayLength},
	OpAthrow:          {name: "athrow", cat: CatThrow},
	OpCheckcast:       {name: "checkcast", cat: CatTypeCheck},
	OpInstanceof:      {name: "instanceof", cat: CatTypeCheck},
	OpMonitorenter:    {name: "monitorenter", cat: CatMonitor},
	OpMonitorexit:     {name: "monitorexit", cat: CatMonitor},
	OpWide:            {name: "wide", cat: CatNop},
	OpMultianewarray:  {name: "multianewarray", cat: CatNewArray},
	OpIfnull:          {name: "ifnull", cat: CatBranch},
	OpIfnonnull:       {name: "ifnonnull", cat: CatBranch},
	OpGotoW:           {name: "goto_w", cat: CatGoto},
	OpJsrW:            {name: "jsr_w", cat: CatJsr},
}
