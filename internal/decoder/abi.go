package decoder

// eventABIJSON describes the closed set of ClawedEscrow contract events.
// Field order and indexed/non-indexed placement matches the on-chain
// encoding documented for the contract's event ABI.
const eventABIJSON = `[
  {"anonymous":false,"type":"event","name":"TaskCreated","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"requester","type":"address","indexed":true},
    {"name":"payoutAmount","type":"uint128","indexed":false},
    {"name":"maxWinners","type":"uint16","indexed":false},
    {"name":"deadline","type":"uint40","indexed":false},
    {"name":"specHash","type":"bytes32","indexed":false}
  ]},
  {"anonymous":false,"type":"event","name":"TaskFunded","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"requester","type":"address","indexed":true},
    {"name":"escrowedAmount","type":"uint256","indexed":false},
    {"name":"depositFeePaid","type":"uint256","indexed":false}
  ]},
  {"anonymous":false,"type":"event","name":"Claimed","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"submissionId","type":"uint256","indexed":true},
    {"name":"agent","type":"address","indexed":true}
  ]},
  {"anonymous":false,"type":"event","name":"ProofSubmitted","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"submissionId","type":"uint256","indexed":true},
    {"name":"agent","type":"address","indexed":true},
    {"name":"proofHash","type":"bytes32","indexed":false}
  ]},
  {"anonymous":false,"type":"event","name":"Approved","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"submissionId","type":"uint256","indexed":true},
    {"name":"approver","type":"address","indexed":true}
  ]},
  {"anonymous":false,"type":"event","name":"Rejected","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"submissionId","type":"uint256","indexed":true},
    {"name":"approver","type":"address","indexed":true}
  ]},
  {"anonymous":false,"type":"event","name":"Withdrawn","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"submissionId","type":"uint256","indexed":true},
    {"name":"agent","type":"address","indexed":true},
    {"name":"netPayout","type":"uint256","indexed":false},
    {"name":"recipientFee","type":"uint256","indexed":false}
  ]},
  {"anonymous":false,"type":"event","name":"DisputeOpened","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"submissionId","type":"uint256","indexed":true},
    {"name":"by","type":"address","indexed":true}
  ]},
  {"anonymous":false,"type":"event","name":"DisputeResolved","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"submissionId","type":"uint256","indexed":true},
    {"name":"by","type":"address","indexed":true},
    {"name":"approved","type":"bool","indexed":false}
  ]},
  {"anonymous":false,"type":"event","name":"TaskClosed","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"requester","type":"address","indexed":true},
    {"name":"refunded","type":"uint256","indexed":false}
  ]},
  {"anonymous":false,"type":"event","name":"TaskCancelled","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"requester","type":"address","indexed":true},
    {"name":"refunded","type":"uint256","indexed":false}
  ]},
  {"anonymous":false,"type":"event","name":"TaskRefunded","inputs":[
    {"name":"taskId","type":"uint256","indexed":true},
    {"name":"requester","type":"address","indexed":true},
    {"name":"refunded","type":"uint256","indexed":false},
    {"name":"reason","type":"string","indexed":false}
  ]}
]`
